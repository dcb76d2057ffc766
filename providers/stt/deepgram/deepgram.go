// Package deepgram implements the streaming speech recognizer on the
// Deepgram realtime websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AmanYadav007/BonusLYF/internal/call/capture"
	"github.com/AmanYadav007/BonusLYF/internal/config"
)

const ProviderID = "stt-deepgram"

// Config controls the Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Encoding    string
	SampleRate  int
	Channels    int
	SmartFormat bool
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      config.ResolveEnvValue("BLYF_STT_DEEPGRAM_API_KEY", "BLYF_STT_DEEPGRAM_API_KEY_REF", os.Getenv("DEEPGRAM_API_KEY")),
		APIBaseURL:  defaultString(os.Getenv("BLYF_STT_DEEPGRAM_ENDPOINT"), "https://api.deepgram.com/v1"),
		Model:       defaultString(os.Getenv("BLYF_STT_DEEPGRAM_MODEL"), "nova-2"),
		SmartFormat: true,
	}
}

// Recognizer implements capture.Recognizer against Deepgram.
type Recognizer struct {
	cfg Config
}

func NewRecognizer(cfg Config) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Recognizer{cfg: cfg}
}

func NewRecognizerFromEnv() *Recognizer {
	return NewRecognizer(ConfigFromEnv())
}

// Start dials the realtime endpoint for the given capture language.
func (r *Recognizer) Start(ctx context.Context, languageCode string) (capture.Session, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, errors.New("deepgram api key is not configured")
	}

	wsURL, err := buildListenURL(r.cfg, languageCode)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("connect deepgram websocket: %w", err)
	}

	session := &streamingSession{
		conn:   conn,
		events: make(chan capture.Event, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events chan capture.Event
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan capture.Event {
	return s.events
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.emit(capture.Event{Kind: capture.EventError, ErrKind: capture.ErrorNetwork, Err: fmt.Errorf("send audio: %w", err)})
			return
		}
	}

	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				s.emit(capture.Event{Kind: capture.EventError, ErrKind: classifyReadError(err), Err: err})
			}
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.emit(capture.Event{Kind: capture.EventError, ErrKind: capture.ErrorAborted, Err: errors.New(message)})
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		kind := capture.EventInterim
		if response.IsFinal || response.SpeechFinal {
			kind = capture.EventFinal
		}
		s.emit(capture.Event{Kind: kind, Text: transcript})
	}
}

// emit delivers the event to the consumer, blocking when the buffer is
// momentarily full. Dropping here would lose final transcripts; the
// engine drains the channel until it closes, so the send always lands.
func (s *streamingSession) emit(event capture.Event) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func classifyReadError(err error) capture.ErrorKind {
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		return capture.ErrorPermissionDenied
	}
	return capture.ErrorNetwork
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, languageCode string) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", cfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	query.Set("interim_results", "true")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if languageCode != "" {
		query.Set("language", languageCode)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
