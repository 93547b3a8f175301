package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

// GatewayConfig points the provider at an sms.net.bd compatible HTTP API.
type GatewayConfig struct {
	SendURL    string
	BalanceURL string
	APIKey     string
	SenderID   string
}

type gatewayResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"msg"`
	Data    struct {
		RequestID json.RawMessage `json:"request_id"`
		Balance   json.RawMessage `json:"balance"`
	} `json:"data"`
}

func (r gatewayResponse) accepted() bool {
	code := strings.Trim(strings.TrimSpace(string(r.Error)), `"`)
	return code == "0"
}

// GatewayProvider sends texts through a form-encoded SMS gateway that reports
// success with an `error: 0` JSON body.
type GatewayProvider struct {
	client *resty.Client
	config GatewayConfig
}

func NewGatewayProvider(cfg GatewayConfig) (*GatewayProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewGatewayProviderWithClient(cfg, client)
}

func NewGatewayProviderWithClient(cfg GatewayConfig, client *resty.Client) (*GatewayProvider, error) {
	cfg.SendURL = strings.TrimSpace(cfg.SendURL)
	cfg.BalanceURL = strings.TrimSpace(cfg.BalanceURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.SenderID = strings.TrimSpace(cfg.SenderID)

	if cfg.SendURL == "" {
		return nil, fmt.Errorf("gateway send url is required")
	}
	if _, err := url.ParseRequestURI(cfg.SendURL); err != nil {
		return nil, fmt.Errorf("invalid gateway send url: %w", err)
	}
	if cfg.BalanceURL != "" {
		if _, err := url.ParseRequestURI(cfg.BalanceURL); err != nil {
			return nil, fmt.Errorf("invalid gateway balance url: %w", err)
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &GatewayProvider{
		client: client,
		config: cfg,
	}, nil
}

func (p *GatewayProvider) Send(ctx context.Context, message Message) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if strings.TrimSpace(message.To) == "" {
		return nil, &ProviderError{Message: "recipient number is required"}
	}
	if strings.TrimSpace(message.Body) == "" {
		return nil, &ProviderError{Message: "message body is required"}
	}

	form := map[string]string{
		"api_key": p.config.APIKey,
		"msg":     message.Body,
		"to":      message.To,
	}
	if p.config.SenderID != "" {
		form["sender_id"] = p.config.SenderID
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(p.config.SendURL)
	if err != nil {
		return nil, &ProviderError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    providerErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    "gateway returned undecodable body",
			Cause:      err,
		}
	}
	if !parsed.accepted() {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    gatewayRejection(parsed, responseBody),
		}
	}

	return &ProviderResponse{
		StatusCode: statusCode,
		Body:       responseBody,
		MessageID:  rawString(parsed.Data.RequestID),
	}, nil
}

// Balance reports the remaining account credit as the gateway prints it.
func (p *GatewayProvider) Balance(ctx context.Context) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("provider is not initialized")
	}
	if p.config.BalanceURL == "" {
		return "", &ProviderError{Message: "gateway balance url is not configured"}
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("api_key", p.config.APIKey).
		Get(p.config.BalanceURL)
	if err != nil {
		return "", &ProviderError{
			Message:   "gateway balance request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", &ProviderError{
			StatusCode: statusCode,
			Message:    providerErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return "", &ProviderError{StatusCode: statusCode, Message: "gateway returned undecodable body", Cause: err}
	}
	if !parsed.accepted() {
		return "", &ProviderError{StatusCode: statusCode, Message: gatewayRejection(parsed, responseBody)}
	}

	return rawString(parsed.Data.Balance), nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func gatewayRejection(parsed gatewayResponse, body string) string {
	if msg := strings.TrimSpace(parsed.Message); msg != "" {
		return fmt.Sprintf("gateway rejected message: %s", msg)
	}
	return fmt.Sprintf("gateway rejected message: %s", body)
}

func rawString(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return trimmed
}
