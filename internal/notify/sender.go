package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sender delivers one message to a set of recipients.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// Message is the JSON document posted by WebhookSender.
type Message struct {
	From       string    `json:"from"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

// WebhookSender posts messages to a relay that fans them out to mail or chat.
type WebhookSender struct {
	url    string
	from   string
	client *http.Client
}

// NewWebhookSender builds a sender for url with a per-request timeout.
func NewWebhookSender(url, from string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, from: from, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	payload, err := json.Marshal(Message{
		From:       s.from,
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the log; used when no webhook is configured.
type LogSender struct {
	logger *zap.Logger
	from   string
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger, from string) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, from: from}
}

func (s *LogSender) Send(_ context.Context, recipients []string, subject, body string) error {
	s.logger.Info("notification",
		zap.String("from", s.from),
		zap.String("to", strings.Join(recipients, ",")),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)))
	return nil
}
