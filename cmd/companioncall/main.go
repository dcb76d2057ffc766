// Command companioncall runs a companion voice call from the terminal.
// The call subcommand drives a full session from a scripted transcript:
// online it talks to the configured speech and reply providers, offline
// it answers with a canned persona so the whole loop runs without keys.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AmanYadav007/BonusLYF/internal/call/capture"
	"github.com/AmanYadav007/BonusLYF/internal/call/media"
	"github.com/AmanYadav007/BonusLYF/internal/call/session"
	"github.com/AmanYadav007/BonusLYF/internal/call/synthesis"
	"github.com/AmanYadav007/BonusLYF/internal/call/turn"
	"github.com/AmanYadav007/BonusLYF/internal/companion"
	"github.com/AmanYadav007/BonusLYF/internal/log"
	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
	"github.com/AmanYadav007/BonusLYF/providers/llm/gemini"
	"github.com/AmanYadav007/BonusLYF/providers/llm/grok"
	"github.com/AmanYadav007/BonusLYF/providers/tts/elevenlabs"
	"github.com/AmanYadav007/BonusLYF/providers/tts/polly"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "companioncall: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	case "roster":
		return printRoster(stdout)
	case "languages":
		return printLanguages(stdout)
	case "call":
		return runCall(args[1:], stdout, stderr, now)
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "companioncall usage:")
	fmt.Fprintln(w, "  companioncall roster")
	fmt.Fprintln(w, "  companioncall languages")
	fmt.Fprintln(w, "  companioncall call -script <transcript> [-companion id] [-language code] [-offline] [-out dir]")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  companioncall call -script hello.txt -offline")
	fmt.Fprintln(w, "  companioncall call -script hello.txt -companion comp_anime_01 -language ja-JP -out ./clips")
}

func printRoster(w io.Writer) error {
	roster, err := companion.DefaultRoster()
	if err != nil {
		return err
	}
	for _, c := range roster.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\tvoice=%s\n", c.ID, c.Type, c.Name, c.Voice.VoiceID)
	}
	return nil
}

func printLanguages(w io.Writer) error {
	for _, lang := range companion.SupportedLanguages() {
		fmt.Fprintf(w, "%s\t%s\n", lang.Code, lang.Name)
	}
	return nil
}

func runCall(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	flags := flag.NewFlagSet("call", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		companionID  = flags.String("companion", "", "companion id from the roster (default: roster default)")
		languageCode = flags.String("language", companion.DefaultLanguageCode, "capture language code")
		scriptPath   = flags.String("script", "", "transcript file, one user line per turn")
		offline      = flags.Bool("offline", false, "use the canned persona instead of live providers")
		outDir       = flags.String("out", "", "write synthesized clips into this directory")
		connectDelay = flags.Duration("connect-delay", 100*time.Millisecond, "simulated connect time")
		turnGap      = flags.Duration("turn-gap", 200*time.Millisecond, "delay before each scripted line")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *scriptPath == "" {
		return fmt.Errorf("call: -script is required; live microphone capture needs a platform audio source")
	}
	lines, err := readScript(*scriptPath)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("call: script %s has no lines", *scriptPath)
	}

	roster, err := companion.DefaultRoster()
	if err != nil {
		return err
	}
	comp := roster.Default()
	if *companionID != "" {
		found, ok := roster.ByID(*companionID)
		if !ok {
			return fmt.Errorf("call: unknown companion %q", *companionID)
		}
		comp = found
	}

	logger := log.NewForTesting(stderr)
	generators, speech, err := buildVoicePipeline(roster, *offline, *outDir, stdout)
	if err != nil {
		return err
	}

	sess, err := session.New(session.Config{
		Companion:    comp,
		Language:     *languageCode,
		ConnectDelay: *connectDelay,
		Generators:   generators,
		Speech:       speech,
		Recognizer:   &scriptedRecognizer{lines: lines, gap: *turnGap},
		Devices:      grantingDevices{},
		Logger:       logger,
		Now:          now,
	})
	if err != nil {
		return err
	}
	defer sess.End()

	fmt.Fprintf(stdout, "calling %s (%s) in %s\n", comp.Name, comp.ID, *languageCode)
	if err := sess.Start(context.Background()); err != nil {
		return err
	}

	if err := waitForScript(sess, len(lines)); err != nil {
		return err
	}
	sess.End()

	fmt.Fprintln(stdout, "---")
	for _, msg := range sess.History() {
		speaker := "you"
		if msg.Role == contracts.RoleAssistant {
			speaker = comp.Name
		}
		fmt.Fprintf(stdout, "%s: %s\n", speaker, msg.Content)
	}
	return nil
}

func buildVoicePipeline(roster *companion.Roster, offline bool, outDir string, stdout io.Writer) ([]contracts.TextGenerator, *synthesis.Client, error) {
	if offline {
		speech, err := synthesis.NewClient(synthesis.Config{
			Fallback: consoleSpeaker{w: stdout},
		})
		if err != nil {
			return nil, nil, err
		}
		return []contracts.TextGenerator{cannedGenerator{}}, speech, nil
	}

	promptFor := func(companionType string) (string, bool) {
		c, ok := roster.ByType(companion.Type(companionType))
		if !ok {
			return "", false
		}
		return c.SystemPrompt, true
	}

	var generators []contracts.TextGenerator
	if cfg := grok.ConfigFromEnv(); cfg.APIKey != "" {
		cfg.SystemPromptFor = promptFor
		gen, err := grok.NewGenerator(cfg)
		if err != nil {
			return nil, nil, err
		}
		generators = append(generators, gen)
	}
	if cfg := gemini.ConfigFromEnv(); cfg.APIKey != "" {
		cfg.SystemPromptFor = promptFor
		gen, err := gemini.NewGenerator(context.Background(), cfg)
		if err != nil {
			return nil, nil, err
		}
		generators = append(generators, gen)
	}
	if len(generators) == 0 {
		return nil, nil, fmt.Errorf("call: no reply provider configured; set XAI_API_KEY or GEMINI_API_KEY, or pass -offline")
	}

	var remotes []contracts.SpeechSynthesizer
	if cfg := elevenlabs.ConfigFromEnv(); cfg.APIKey != "" {
		synth, err := elevenlabs.NewSynthesizer(cfg)
		if err != nil {
			return nil, nil, err
		}
		remotes = append(remotes, synth)
	}
	if pollySynth, err := polly.NewSynthesizerFromEnv(); err == nil {
		remotes = append(remotes, pollySynth)
	}

	speech, err := synthesis.NewClient(synthesis.Config{
		Remotes:  remotes,
		Player:   &clipWriter{dir: outDir, w: stdout},
		Fallback: consoleSpeaker{w: stdout},
	})
	if err != nil {
		return nil, nil, err
	}
	return generators, speech, nil
}

func readScript(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("call: read script: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// waitForScript blocks until every scripted line has been answered or the
// call stalls.
func waitForScript(sess *session.Session, turns int) error {
	deadline := time.Now().Add(time.Duration(turns)*30*time.Second + 10*time.Second)
	for time.Now().Before(deadline) {
		snap := sess.Snapshot()
		if snap.Turns.TurnsTotal+snap.Turns.NoiseDrops >= uint64(turns) && snap.Phase == turn.PhaseListening {
			return nil
		}
		if snap.Phase == turn.PhaseEnded {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("call: timed out waiting for the script to finish")
}

// scriptedRecognizer plays one transcript line per capture session. The
// engine opens a fresh session after every turn, which advances the
// script.
type scriptedRecognizer struct {
	mu    sync.Mutex
	lines []string
	next  int
	gap   time.Duration
}

func (r *scriptedRecognizer) Start(ctx context.Context, _ string) (capture.Session, error) {
	sess := &scriptedSession{events: make(chan capture.Event, 1)}
	line, ok := r.take()
	if !ok {
		return sess, nil
	}
	go func() {
		timer := time.NewTimer(r.gap)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		sess.emit(capture.Event{Kind: capture.EventFinal, Text: line})
	}()
	return sess, nil
}

func (r *scriptedRecognizer) take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.lines) {
		return "", false
	}
	line := r.lines[r.next]
	r.next++
	return line, true
}

type scriptedSession struct {
	mu     sync.Mutex
	events chan capture.Event
	closed bool
}

func (s *scriptedSession) Events() <-chan capture.Event { return s.events }

func (s *scriptedSession) SendAudio([]byte) error { return nil }

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *scriptedSession) emit(ev capture.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

// grantingDevices stands in for platform capture; the terminal has no
// real microphone or camera pipeline to hand out.
type grantingDevices struct{}

type noopStream struct{}

func (noopStream) Stop() {}

func (grantingDevices) RequestStream(context.Context, media.Constraints) (media.Stream, error) {
	return noopStream{}, nil
}

// cannedGenerator answers offline scripts without a provider.
type cannedGenerator struct{}

func (cannedGenerator) Name() string { return "offline-persona" }

func (cannedGenerator) GenerateReply(ctx context.Context, req contracts.ReplyRequest) (contracts.ReplyResult, error) {
	if ctx.Err() != nil {
		return contracts.ReplyResult{Outcome: contracts.Outcome{
			Class: contracts.OutcomeCancelled, Reason: "context_cancelled",
		}}, nil
	}
	return contracts.ReplyResult{
		Text:    fmt.Sprintf("I hear you. %q is on my mind now, tell me more.", req.UserText),
		Outcome: contracts.Success(),
	}, nil
}

// consoleSpeaker voices replies as text, standing in for on-device TTS.
type consoleSpeaker struct {
	w io.Writer
}

func (c consoleSpeaker) Speak(_ context.Context, text string, voice contracts.VoiceSpec, ev synthesis.Events) error {
	ev.Start()
	fmt.Fprintf(c.w, "[voice %s] %s\n", voice.ID, text)
	ev.End()
	return nil
}

// clipWriter plays clips by writing them to disk.
type clipWriter struct {
	mu  sync.Mutex
	dir string
	w   io.Writer
	n   int
}

func (p *clipWriter) Play(_ context.Context, clip contracts.Clip, ev synthesis.Events) error {
	ev.Start()
	p.mu.Lock()
	p.n++
	n := p.n
	p.mu.Unlock()
	if p.dir != "" {
		path := fmt.Sprintf("%s/turn-%03d.mp3", p.dir, n)
		if err := os.WriteFile(path, clip.Audio, 0o644); err != nil {
			ev.Error(err)
			return err
		}
		fmt.Fprintf(p.w, "[clip %s, %d bytes]\n", path, len(clip.Audio))
	} else {
		fmt.Fprintf(p.w, "[clip %d bytes %s]\n", len(clip.Audio), clip.MimeType)
	}
	ev.End()
	return nil
}
