package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPipelineExportsAndDrains(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 8})

	pipeline.EmitMetric(MetricTurnLatencyMS, 420, "ms", map[string]string{"outcome": "success"}, Correlation{SessionID: "sess-1", TurnID: "turn-1"})
	pipeline.EmitLog("turn_dispatched", "info", "final transcript accepted", nil, Correlation{SessionID: "sess-1", Phase: "thinking"})

	if err := pipeline.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 exported events, got %d", len(events))
	}
	if events[0].Kind != EventKindMetric || events[0].Metric.Name != MetricTurnLatencyMS {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Correlation.Phase != "thinking" {
		t.Fatalf("correlation not preserved: %+v", events[1].Correlation)
	}

	stats := pipeline.Stats()
	if stats.Exported != 2 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

type failingSink struct{}

func (failingSink) Export(context.Context, Event) error { return errors.New("sink down") }

func TestPipelineCountsExportFailures(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(failingSink{}, Config{QueueCapacity: 2, ExportTimeout: 50 * time.Millisecond})
	pipeline.EmitLog("session_ended", "info", "teardown complete", nil, Correlation{SessionID: "sess-2"})
	_ = pipeline.Close()

	if stats := pipeline.Stats(); stats.ExportFailures != 1 {
		t.Fatalf("expected 1 export failure, got %+v", stats)
	}
}

func TestDefaultEmitterFallsBackToNoop(t *testing.T) {
	SetDefaultEmitter(nil)
	DefaultEmitter().EmitLog("noop", "debug", "ignored", nil, Correlation{})

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{})
	SetDefaultEmitter(pipeline)
	t.Cleanup(func() { SetDefaultEmitter(nil); _ = pipeline.Close() })

	DefaultEmitter().EmitMetric(MetricSynthesisFallbacks, 1, "count", nil, Correlation{SessionID: "sess-3"})
	_ = pipeline.Close()
	if len(sink.Events()) != 1 {
		t.Fatalf("expected event through default emitter")
	}
}
