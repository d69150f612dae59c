package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/routepulse/routepulse/internal/config"
)

const defaultSendTimeout = 10 * time.Second

// ntfyBase is the public ntfy.sh endpoint; topic is appended.
const ntfyBase = "https://ntfy.sh/"

// Notifier sends one opaque text message per triggered alert.
type Notifier interface {
	Send(message string) error
}

// Sender fans a message out to the configured ntfy topic and webhooks.
type Sender struct {
	cfg      config.NotifyConfig
	client   *http.Client
	ntfyBase string // overridable in tests
}

// New creates a Sender from the notification configuration.
// A Sender with no targets is valid; Send becomes a logged no-op.
func New(cfg config.NotifyConfig) *Sender {
	return &Sender{
		cfg:      cfg,
		client:   &http.Client{Timeout: defaultSendTimeout},
		ntfyBase: ntfyBase,
	}
}

// Send posts message to every configured target. The first delivery error
// is returned so callers can log it, but partial delivery is not undone and
// nothing is retried.
func (s *Sender) Send(message string) error {
	var firstErr error
	sent := 0

	if s.cfg.Topic != "" {
		if err := s.sendNtfy(message); err != nil {
			slog.Error("notify: ntfy delivery failed", "topic", s.cfg.Topic, "err", err)
			firstErr = err
		} else {
			sent++
		}
	}

	for _, wh := range s.cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("notify: webhook has no URL — skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = s.sendSlack(url, message)
		case "http":
			err = s.sendHTTP(url, message)
		default:
			slog.Warn("notify: unknown webhook type — skipping", "type", wh.Type)
			continue
		}
		if err != nil {
			slog.Error("notify: webhook delivery failed", "type", wh.Type, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			sent++
		}
	}

	if sent == 0 && firstErr == nil {
		slog.Debug("notify: no targets configured — message dropped")
	}
	return firstErr
}

// sendNtfy posts the raw message body to the ntfy topic.
func (s *Sender) sendNtfy(message string) error {
	resp, err := s.client.Post(s.ntfyBase+s.cfg.Topic, "text/plain", strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("ntfy post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) sendSlack(url, message string) error {
	body, _ := json.Marshal(map[string]string{"text": message})
	return s.post(url, body)
}

func (s *Sender) sendHTTP(url, message string) error {
	body, _ := json.Marshal(map[string]string{"message": message})
	return s.post(url, body)
}

func (s *Sender) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
