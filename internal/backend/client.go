package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/session"
	"github.com/kursadbilgin/sms-dispatch/internal/wire"
	"go.uber.org/zap"
)

// Batches are sent to the gateway one recipient at a time on the server, so
// the API call can take a while for large uploads.
const defaultAPITimeout = 5 * time.Minute

// Partition selects which half of a dispatch result an export covers.
type Partition string

const (
	PartitionSuccessful Partition = "successful"
	PartitionFailed     Partition = "failed"
)

func (p Partition) String() string { return string(p) }

// Artifact is a generated download returned by the export endpoint.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client talks to the dispatch API on behalf of one operator session.
type Client struct {
	client  *resty.Client
	session *session.Session
	logger  *zap.Logger
}

func NewClient(baseURL string, sess *session.Session, logger *zap.Logger) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultAPITimeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, sess, client, logger)
}

func NewClientWithResty(baseURL string, sess *session.Session, client *resty.Client, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("dispatch api url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid dispatch api url: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultAPITimeout)
	}
	// Retries would resend messages; the operator retries explicitly.
	client.SetRetryCount(0)
	client.SetBaseURL(trimmed)

	return &Client{
		client:  client,
		session: sess,
		logger:  logger,
	}, nil
}

func (c *Client) SubmitBatch(ctx context.Context, rows []domain.Row, selectedIndices []int) (domain.DispatchResult, error) {
	var resp wire.DispatchResponse
	body := wire.SubmitBatchRequest{Rows: rows, SelectedIndices: selectedIndices}
	if _, err := c.do(ctx, http.MethodPost, "/send-sms", body, &resp); err != nil {
		return domain.DispatchResult{}, err
	}
	return resp.DispatchResult()
}

func (c *Client) ManualSend(ctx context.Context, numbers string, message string) (domain.DispatchResult, error) {
	var resp wire.DispatchResponse
	body := wire.ManualSendRequest{Numbers: numbers, Message: message}
	if _, err := c.do(ctx, http.MethodPost, "/send-manual", body, &resp); err != nil {
		return domain.DispatchResult{}, err
	}
	return resp.DispatchResult()
}

func (c *Client) ListFailures(ctx context.Context) ([]domain.FailedMessage, error) {
	var entries []wire.FailedMessageEntry
	if _, err := c.do(ctx, http.MethodGet, "/failed-sms", nil, &entries); err != nil {
		return nil, err
	}

	records := make([]domain.FailedMessage, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.FailedMessage())
	}
	return records, nil
}

func (c *Client) ResendFailures(ctx context.Context, ids []int64) (domain.DispatchResult, error) {
	var resp wire.DispatchResponse
	if _, err := c.do(ctx, http.MethodPost, "/failed-sms/resend", wire.ResendRequest{IDs: ids}, &resp); err != nil {
		return domain.DispatchResult{}, err
	}
	return resp.DispatchResult()
}

func (c *Client) ExportPartition(ctx context.Context, partition Partition, outcomes []domain.RecipientOutcome) (*Artifact, error) {
	entries := make([]wire.RecipientEntry, 0, len(outcomes))
	for _, o := range outcomes {
		entries = append(entries, wire.FromOutcome(o))
	}

	var body wire.ExportRequest
	switch partition {
	case PartitionSuccessful:
		body.Successful = entries
	case PartitionFailed:
		body.Failed = entries
	default:
		return nil, fmt.Errorf("%w: unknown partition %q", domain.ErrValidation, partition)
	}

	response, err := c.do(ctx, http.MethodPost, "/export", body, nil)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Filename:    filenameHint(response.Header().Get("Content-Disposition")),
		ContentType: response.Header().Get("Content-Type"),
		Data:        response.Body(),
	}, nil
}

// GetBatch fetches the audit record of one dispatch batch.
func (c *Client) GetBatch(ctx context.Context, id string) (*wire.BatchResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	var resp wire.BatchResponse
	if _, err := c.do(ctx, http.MethodGet, "/batches/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Preview(ctx context.Context, examType string, rows []domain.Row) ([]domain.Row, error) {
	var resp wire.PreviewResponse
	if _, err := c.do(ctx, http.MethodPost, "/templates/preview", wire.PreviewRequest{Type: examType, Data: rows}, &resp); err != nil {
		return nil, err
	}
	return resp.Preview, nil
}

func (c *Client) Balance(ctx context.Context) (string, error) {
	var resp wire.BalanceResponse
	if _, err := c.do(ctx, http.MethodGet, "/balance", nil, &resp); err != nil {
		return "", err
	}
	return resp.Balance, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) (*resty.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	token, err := c.session.Token()
	if err != nil {
		return nil, err
	}

	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		req.SetHeader("X-Request-ID", correlationID)
	}

	response, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, method, path, err)
	}

	if response.StatusCode() == http.StatusUnauthorized {
		c.session.Invalidate()
		c.logger.Warn("dispatch api rejected session token", zap.String("path", path))
	}
	if !response.IsSuccess() {
		return nil, newAPIError(response)
	}

	if out != nil {
		if err := json.Unmarshal(response.Body(), out); err != nil {
			return nil, fmt.Errorf("%w: undecodable %s %s response: %v", domain.ErrProtocolMismatch, method, path, err)
		}
	}
	return response, nil
}

func filenameHint(disposition string) string {
	if strings.TrimSpace(disposition) == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
