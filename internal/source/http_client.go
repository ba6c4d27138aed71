package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

// HTTPClient is a Client over the platform's REST inbox API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type inboxMessage struct {
	ID         string `json:"id"`
	Author     string `json:"author"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	WasComment bool   `json:"was_comment"`
	Permalink  string `json:"permalink"`
	CreatedUTC int64  `json:"created_utc"`
}

type inboxResponse struct {
	Messages []inboxMessage `json:"messages"`
}

// NewHTTPClient creates an inbox client for the given base URL and token.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: trimmed,
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchUnread retrieves up to limit unread messages, oldest first.
func (c *HTTPClient) FetchUnread(ctx context.Context, limit int) ([]models.Message, error) {
	endpoint := fmt.Sprintf("%s/inbox/unread?limit=%s", c.baseURL, url.QueryEscape(strconv.Itoa(limit)))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "fetch unread")
	if err != nil {
		return nil, err
	}

	var payload inboxResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode inbox response: %w", err)
	}

	messages := make([]models.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, models.Message{
			ID:         m.ID,
			Author:     m.Author,
			Subject:    m.Subject,
			Body:       m.Body,
			WasComment: m.WasComment,
			Permalink:  m.Permalink,
			CreatedAt:  time.Unix(m.CreatedUTC, 0).UTC(),
		})
	}
	return messages, nil
}

// MarkRead marks a message as read. Safe to repeat.
func (c *HTTPClient) MarkRead(ctx context.Context, messageID string) error {
	endpoint := fmt.Sprintf("%s/inbox/%s/read", c.baseURL, url.PathEscape(messageID))
	_, err := c.do(ctx, http.MethodPost, endpoint, nil, "mark read")
	return err
}

// Reply sends a reply, either in thread or as a new private message.
func (c *HTTPClient) Reply(ctx context.Context, to Recipient, subject, body string) error {
	payload := map[string]string{
		"subject": subject,
		"body":    body,
	}
	var endpoint string
	if to.MessageID != "" {
		endpoint = fmt.Sprintf("%s/inbox/%s/reply", c.baseURL, url.PathEscape(to.MessageID))
	} else {
		endpoint = fmt.Sprintf("%s/messages", c.baseURL)
		payload["to"] = to.Username
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, endpoint, encoded, "reply")
	return err
}

// do issues one request and classifies the failure mode. Rate limits,
// upstream 5xx and connection-level failures come back as TransientError.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{Op: op, Err: fmt.Errorf("inbox API returned status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("%s: inbox API returned status %d", op, resp.StatusCode)
	}
}

var _ Client = (*HTTPClient)(nil)
