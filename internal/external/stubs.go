package external

import (
	"log/slog"
)

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
// Used when APP_ENV=local so webhooks can be exercised without provider
// secrets.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Info("stub: webhook Verify called",
		"payload_len", len(payload),
	)
	return nil
}

// StubNotificationVerifier implements NotificationVerifier by decoding the
// claims without checking the signature. Local use only.
type StubNotificationVerifier struct {
	logger *slog.Logger
}

// NewStubNotificationVerifier creates a new StubNotificationVerifier.
func NewStubNotificationVerifier(logger *slog.Logger) *StubNotificationVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubNotificationVerifier{logger: logger}
}

func (s *StubNotificationVerifier) VerifyAndDecode(signedPayload string) ([]byte, error) {
	s.logger.Info("stub: notification VerifyAndDecode called")
	return decodeClaimsUnverified(signedPayload)
}

var (
	_ WebhookVerifier      = (*StripeVerifier)(nil)
	_ WebhookVerifier      = (*PaddleVerifier)(nil)
	_ WebhookVerifier      = (*StubWebhookVerifier)(nil)
	_ NotificationVerifier = (*AppStoreVerifier)(nil)
	_ NotificationVerifier = (*StubNotificationVerifier)(nil)
)
