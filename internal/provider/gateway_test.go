package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *GatewayProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewGatewayProvider(GatewayConfig{
		SendURL:    server.URL + "/sendsms",
		BalanceURL: server.URL + "/user/balance/",
		APIKey:     "secret-key",
		SenderID:   "BIGBANG",
	})
	if err != nil {
		t.Fatalf("NewGatewayProvider() error = %v", err)
	}
	return p
}

func TestGatewayProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotForm map[string]string

	p := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotForm = map[string]string{
			"api_key":   r.PostForm.Get("api_key"),
			"msg":       r.PostForm.Get("msg"),
			"to":        r.PostForm.Get("to"),
			"sender_id": r.PostForm.Get("sender_id"),
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":0,"msg":"Request successfully submitted","data":{"request_id":8812}}`))
	})

	resp, err := p.Send(context.Background(), Message{To: "8801712345678", Body: "ফলাফল: Mock"})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.MessageID != "8812" {
		t.Fatalf("MessageID = %q, want %q", resp.MessageID, "8812")
	}

	want := map[string]string{
		"api_key":   "secret-key",
		"msg":       "ফলাফল: Mock",
		"to":        "8801712345678",
		"sender_id": "BIGBANG",
	}
	for key, value := range want {
		if gotForm[key] != value {
			t.Fatalf("form[%s] = %q, want %q", key, gotForm[key], value)
		}
	}
}

func TestGatewayProviderSendRejectedByGateway(t *testing.T) {
	t.Parallel()

	p := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":405,"msg":"Invalid number"}`))
	})

	_, err := p.Send(context.Background(), Message{To: "880171", Body: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if providerErr.Transient {
		t.Fatal("gateway rejection should be permanent")
	}
	if providerErr.Message != "gateway rejected message: Invalid number" {
		t.Fatalf("Message = %q", providerErr.Message)
	}
}

func TestGatewayProviderSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			})

			_, err := p.Send(context.Background(), Message{To: "8801712345678", Body: "hello"})
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestGatewayProviderSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"error":0}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewGatewayProviderWithClient(GatewayConfig{SendURL: server.URL, APIKey: "k"}, client)
	if err != nil {
		t.Fatalf("NewGatewayProviderWithClient() error = %v", err)
	}

	_, err = p.Send(context.Background(), Message{To: "8801712345678", Body: "hello"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestGatewayProviderBalance(t *testing.T) {
	t.Parallel()

	p := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/balance/" {
			t.Errorf("path = %s, want /user/balance/", r.URL.Path)
		}
		if got := r.URL.Query().Get("api_key"); got != "secret-key" {
			t.Errorf("api_key = %q, want secret-key", got)
		}
		_, _ = w.Write([]byte(`{"error":0,"msg":"Success","data":{"balance":"152.40"}}`))
	})

	balance, err := p.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() unexpected error: %v", err)
	}
	if balance != "152.40" {
		t.Fatalf("Balance() = %q, want %q", balance, "152.40")
	}
}

func TestGatewayProviderBalanceNotConfigured(t *testing.T) {
	t.Parallel()

	p, err := NewGatewayProvider(GatewayConfig{SendURL: "http://localhost/sendsms", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGatewayProvider() error = %v", err)
	}

	if _, err := p.Balance(context.Background()); err == nil {
		t.Fatal("expected error without balance url")
	}
}

func TestNewGatewayProviderValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  GatewayConfig
	}{
		{name: "missing url", cfg: GatewayConfig{APIKey: "k"}},
		{name: "relative url", cfg: GatewayConfig{SendURL: "sendsms", APIKey: "k"}},
		{name: "missing key", cfg: GatewayConfig{SendURL: "http://localhost/sendsms"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewGatewayProvider(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDryRunProvider(t *testing.T) {
	t.Parallel()

	p := NewDryRunProvider(nil)

	resp, err := p.Send(context.Background(), Message{To: "8801712345678", Body: "hello"})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if resp.MessageID == "" {
		t.Fatal("expected message id")
	}
	if _, err := p.Send(context.Background(), Message{To: "8801712345678"}); err == nil {
		t.Fatal("expected error for empty body")
	}
	if got := p.Sent(); got != 1 {
		t.Fatalf("Sent() = %d, want 1", got)
	}
}
