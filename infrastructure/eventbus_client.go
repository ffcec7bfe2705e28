package infrastructure

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

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const eventsPath = "/api/events"

// BusError is returned when the event bus cannot be reached or rejects a call.
// Both cases are I/O failures the next scheduled run may retry.
type BusError struct {
	Op         string
	StatusCode int // 0 for transport failures
	Body       string
	Err        error
}

func (e *BusError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("event bus %s failed: status=%d body=%s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("event bus %s failed: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed later. Client errors other
// than 408 and 429 will not.
func (e *BusError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// EventBusClient reads and emits events on the external event bus HTTP API
type EventBusClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewEventBusClient returns a client for the bus at baseURL
func NewEventBusClient(baseURL, token string, timeout time.Duration) *EventBusClient {
	return &EventBusClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type fetchResponse struct {
	Events []json.RawMessage `json:"events"`
}

// FetchSince implements interfaces.EventSource. Events that cannot be decoded
// are logged and dropped; the rest of the batch is kept.
func (c *EventBusClient) FetchSince(ctx context.Context, lastUID *string, since time.Time, hints entities.FetchHints) ([]entities.DigestEvent, error) {
	query := url.Values{}
	if lastUID != nil && *lastUID != "" {
		query.Set("since_uid", *lastUID)
	}
	query.Set("since_timestamp", strconv.FormatInt(since.UnixMilli(), 10))
	if hints.AccountID != "" {
		query.Set("account_id", hints.AccountID)
	}
	if len(hints.EventTypes) > 0 {
		query.Set("event_types", strings.Join(hints.EventTypes, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+eventsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	body, err := c.do(req, "fetch")
	if err != nil {
		return nil, err
	}

	var resp fetchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &BusError{Op: "fetch", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	fetched := make([]entities.DigestEvent, 0, len(resp.Events))
	for i, raw := range resp.Events {
		var event entities.DigestEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			log.WithFields(log.Fields{
				"index": i,
				"error": err,
			}).Warn("Skipping malformed event from event bus")
			continue
		}
		fetched = append(fetched, event)
	}
	return fetched, nil
}

// Emit implements interfaces.EventSource
func (c *EventBusClient) Emit(ctx context.Context, event interfaces.BusEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bus event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+eventsPath, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build emit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	if _, err := c.do(req, "emit"); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"eventType": event.EventType,
		"accountId": event.AccountID,
	}).Debug("Emitted event to event bus")
	return nil
}

func (c *EventBusClient) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// do runs the request and returns the body of a 2xx response
func (c *EventBusClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &BusError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BusError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
