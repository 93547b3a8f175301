package provider

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRunProvider accepts every message without contacting a gateway.
type DryRunProvider struct {
	logger *zap.Logger
	sent   atomic.Int64
}

func NewDryRunProvider(logger *zap.Logger) *DryRunProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunProvider{logger: logger}
}

func (p *DryRunProvider) Send(_ context.Context, message Message) (*ProviderResponse, error) {
	if message.To == "" || message.Body == "" {
		return nil, &ProviderError{Message: "dry run rejected incomplete message"}
	}

	p.sent.Add(1)
	messageID := uuid.NewString()
	p.logger.Info("dry run sms",
		zap.String("to", message.To),
		zap.Int("length", len([]rune(message.Body))),
		zap.String("messageId", messageID),
	)

	return &ProviderResponse{
		StatusCode: http.StatusOK,
		Body:       `{"error":0,"msg":"dry run"}`,
		MessageID:  messageID,
	}, nil
}

func (p *DryRunProvider) Balance(context.Context) (string, error) {
	return "unlimited (dry run)", nil
}

// Sent returns how many messages were accepted.
func (p *DryRunProvider) Sent() int64 {
	return p.sent.Load()
}
