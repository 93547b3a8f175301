package provider

import (
	"context"
)

// Provider is the outbound SMS gateway port.
type Provider interface {
	Send(ctx context.Context, message Message) (*ProviderResponse, error)
	Balance(ctx context.Context) (string, error)
}

// Message is one text addressed to one normalized number.
type Message struct {
	To   string
	Body string
}

// ProviderResponse stores gateway call metadata for audit and persistence.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
