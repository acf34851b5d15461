package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutu529/qilin-check-bag/internal/review"
)

const (
	fetchPath  = "/api/images/image_judge"
	submitPath = "/api/images/judge"
)

// Client talks to the review-queue server. Every response uses the
// {code, message, data} envelope; code 200 is success, anything else is a
// server-side rejection with message as the error text.
type Client struct {
	baseURL string
	token   string
	userID  string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token, userID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("component", "api"),
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// FetchNext asks for the next unreviewed item. A (nil, nil) return means
// the queue is drained, which is not an error.
func (c *Client) FetchNext(ctx context.Context) (*review.Item, error) {
	data, err := c.call(ctx, http.MethodGet, fetchPath, nil)
	if err != nil {
		return nil, &FetchError{Kind: errKind(err), Err: err}
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	item, err := decodeItem(data)
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, Err: err}
	}
	if item.ID == "" {
		return nil, nil
	}
	return item, nil
}

// Submit records a decision and returns the server-confirmed daily
// counters.
func (c *Client) Submit(ctx context.Context, itemID string, d review.Decision, correlationID string) (review.Stats, error) {
	body := map[string]any{
		"scrollGraphId": itemID,
		"judge":         int(d),
		"scanBarcode":   correlationID,
	}

	data, err := c.call(ctx, http.MethodPost, submitPath, body)
	if err != nil {
		return review.Stats{}, &SubmitError{Kind: errKind(err), Err: err}
	}

	var counters struct {
		FailCount int `json:"failCount"`
		PassCount int `json:"passCount"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &counters); err != nil {
			return review.Stats{}, &SubmitError{Kind: KindDecode, Err: err}
		}
	}
	return review.Stats{Released: counters.PassCount, Flagged: counters.FailCount}, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
		req.Header.Set("qilin-user-id", c.userID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &rejection{fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &decodeFailure{fmt.Errorf("%s %s: decode response: %w", method, path, err)}
	}
	if env.Code != http.StatusOK {
		return nil, &rejection{fmt.Errorf("%s %s: server code %d: %s", method, path, env.Code, env.Message)}
	}

	c.logger.Debug("call succeeded", "method", method, "path", path)
	return env.Data, nil
}

// rejection and decodeFailure tag errors produced past the transport so
// errKind can classify without string matching.
type rejection struct{ error }

func (r *rejection) Unwrap() error { return r.error }

type decodeFailure struct{ error }

func (d *decodeFailure) Unwrap() error { return d.error }

func errKind(err error) ErrorKind {
	var rej *rejection
	if errors.As(err, &rej) {
		return KindRejected
	}
	var dec *decodeFailure
	if errors.As(err, &dec) {
		return KindDecode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// itemPayload mirrors the fetch response. Fields beyond the structural
// ones are free-form metadata rendered through the label dictionary.
type itemPayload struct {
	ScrollGraphID string `json:"scrollGraphId"`
	BusinessID    string `json:"businessId"`
	ImageBase64   string `json:"imageBase64"`
	TotalImages   int    `json:"totalImages"`
}

func decodeItem(data json.RawMessage) (*review.Item, error) {
	var p itemPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode item fields: %w", err)
	}

	metadata := make(map[string]string, len(raw))
	for key, value := range raw {
		switch key {
		case "scrollGraphId", "imageBase64", "totalImages":
			continue
		}
		if s := displayValue(value); s != "" {
			metadata[key] = s
		}
	}

	return &review.Item{
		ID:            p.ScrollGraphID,
		CorrelationID: p.BusinessID,
		Image:         p.ImageBase64,
		Metadata:      metadata,
		TotalPending:  p.TotalImages,
	}, nil
}

func displayValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; most metadata values are integral.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
