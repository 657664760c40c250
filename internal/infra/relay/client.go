// Package relay sends reports through a server's send-report endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"attendpro/internal/app"
	"attendpro/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

const sendReportPath = "/api/telegram/send-report"

type sendRequest struct {
	DateISO        string `json:"dateISO"`
	AccountEmail   string `json:"accountEmail"`
	SlotKey        string `json:"slotKey,omitempty"`
	Source         string `json:"source,omitempty"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type sendResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
	Key       string `json:"key"`
}

// Client implements app.ReportDispatcher over HTTP. Deduplication happens on
// the server; the client only forwards the key it derives.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Entry
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = app.DefaultRemoteTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) Dispatch(ctx context.Context, req app.DispatchRequest) (app.DispatchResult, error) {
	if req.Source == "" {
		req.Source = notification.SourceManualReport
	}
	key := req.IdempotencyKey
	if key == "" {
		key = notification.DedupeKey(req.Source, req.AccountEmail, req.SlotKey, req.Date)
	}
	result := app.DispatchResult{Key: key}

	body, err := json.Marshal(sendRequest{
		DateISO:        req.Date.String(),
		AccountEmail:   req.AccountEmail,
		SlotKey:        req.SlotKey,
		Source:         string(req.Source),
		Text:           req.Text,
		IdempotencyKey: key,
	})
	if err != nil {
		return result, fmt.Errorf("failed to encode relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendReportPath, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("failed to build relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return result, fmt.Errorf("%w: relay: %w", app.ErrTimeout, err)
		}
		return result, fmt.Errorf("%w: relay: %w", app.ErrNetwork, err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return result, fmt.Errorf("%w: relay returned %d with unreadable body: %w", app.ErrNetwork, resp.StatusCode, err)
	}
	if out.Key != "" {
		result.Key = out.Key
	}

	switch {
	case resp.StatusCode == http.StatusOK && out.OK:
		result.Duplicate = out.Duplicate
		c.logger.WithFields(logrus.Fields{"dedupe_key": result.Key, "duplicate": out.Duplicate}).Info("Report relayed")
		return result, nil
	case resp.StatusCode == http.StatusBadRequest:
		return result, fmt.Errorf("%w: %s", app.ErrValidation, out.Message)
	default:
		return result, fmt.Errorf("%w: relay returned %d: %s", app.ErrNetwork, resp.StatusCode, out.Message)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
