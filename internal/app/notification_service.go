// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendpro/internal/domain/notification"
	"attendpro/internal/domain/training"
	domainTelegram "attendpro/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// DispatchRequest is one attempt to deliver a report.
type DispatchRequest struct {
	Source       notification.Source
	AccountEmail string
	Date         training.Date
	SlotKey      string // empty for date-keyed sends
	Text         string
	// IdempotencyKey overrides the derived key, e.g. when a relay caller already computed it.
	IdempotencyKey string
}

type DispatchResult struct {
	Key       string `json:"key"`
	Duplicate bool   `json:"duplicate"`
	MessageID string `json:"messageId,omitempty"`
}

// DispatchMetrics receives one outcome per Dispatch call: sent, duplicate, failed or error.
type DispatchMetrics interface {
	DispatchOutcome(source notification.Source, outcome string)
}

type noopDispatchMetrics struct{}

func (noopDispatchMetrics) DispatchOutcome(notification.Source, string) {}

// ReportDispatcher is what schedulers and handlers need from the dispatcher.
type ReportDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// Dispatcher delivers reports at most once per key: reserve, then send, then
// record the outcome. Failed reservations are never retried under the same key.
type Dispatcher struct {
	store   notification.Store
	client  domainTelegram.Client
	metrics DispatchMetrics
	timeout time.Duration
	logger  *logrus.Entry
}

func NewDispatcher(store notification.Store, client domainTelegram.Client, metrics DispatchMetrics, timeout time.Duration, logger *logrus.Entry) *Dispatcher {
	if metrics == nil {
		metrics = noopDispatchMetrics{}
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Dispatcher{store: store, client: client, metrics: metrics, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.AccountEmail = strings.TrimSpace(req.AccountEmail)
	if req.Text == "" {
		return DispatchResult{}, validationf("report text is empty")
	}
	if req.AccountEmail == "" {
		return DispatchResult{}, validationf("account email is required")
	}
	if req.Source == "" {
		req.Source = notification.SourceManualReport
	}
	if req.Date.IsZero() && req.SlotKey == "" && req.IdempotencyKey == "" {
		return DispatchResult{}, validationf("report date or slot key is required")
	}

	key := req.IdempotencyKey
	if key == "" {
		key = notification.DedupeKey(req.Source, req.AccountEmail, req.SlotKey, req.Date)
	}
	result := DispatchResult{Key: key}
	log := d.logger.WithFields(logrus.Fields{"dedupe_key": key, "source": req.Source})

	reserved, err := d.store.Reserve(ctx, &notification.IdempotencyRecord{
		DedupeKey:    key,
		Source:       req.Source,
		SlotKey:      req.SlotKey,
		ReportDate:   req.Date,
		AccountEmail: req.AccountEmail,
	})
	if err != nil {
		d.metrics.DispatchOutcome(req.Source, "error")
		log.WithError(err).Error("Failed to reserve dispatch")
		return result, fmt.Errorf("failed to reserve dispatch: %w", err)
	}
	if !reserved {
		d.metrics.DispatchOutcome(req.Source, "duplicate")
		log.Info("Dispatch already handled, skipping")
		result.Duplicate = true
		return result, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	messageID, sendErr := d.client.SendReport(sendCtx, TruncateReport(req.Text))
	cancel()

	if sendErr != nil {
		d.metrics.DispatchOutcome(req.Source, "failed")
		if err := d.store.MarkFailed(ctx, key, sendErr.Error()); err != nil {
			log.WithError(err).Error("Failed to record failed dispatch")
		}
		log.WithError(sendErr).Error("Report delivery failed")
		if errors.Is(sendErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("%w: send report: %w", ErrTimeout, sendErr)
		}
		return result, fmt.Errorf("%w: send report: %w", ErrNetwork, sendErr)
	}

	result.MessageID = messageID
	if err := d.store.MarkSent(ctx, key, messageID); err != nil {
		log.WithError(err).Error("Failed to record sent dispatch")
	}
	d.metrics.DispatchOutcome(req.Source, "sent")
	log.WithField("message_id", messageID).Info("Report delivered")
	return result, nil
}
