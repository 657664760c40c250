package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"attendpro/internal/app"
	"attendpro/internal/domain/notification"
	"attendpro/internal/domain/training"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const (
	msgNotConfigured = "Telegram не настроен на сервере: задайте TELEGRAM_BOT_TOKEN и TELEGRAM_CHAT_ID."
	msgEmptyReport   = "Пустой отчет не может быть отправлен."
	msgBadRequest    = "Некорректный запрос."
	msgNoAccount     = "Не указан аккаунт отчёта."
	msgBadDate       = "Некорректная дата отчёта."
	msgSent          = "Отчет отправлен в Telegram."
	msgDuplicate     = "Отчет уже был отправлен."
	msgInternal      = "Внутренняя ошибка сервера."
	telegramErrorFmt = "Ошибка Telegram API: "
)

// RelayRequest is the body of POST /api/telegram/send-report.
type RelayRequest struct {
	DateISO        string `json:"dateISO"`
	AccountEmail   string `json:"accountEmail"`
	SlotKey        string `json:"slotKey,omitempty"`
	Source         string `json:"source,omitempty"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// RelayResponse mirrors what the client shows to the operator.
type RelayResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Key       string `json:"key,omitempty"`
}

type RelayHandler struct {
	d Deps
}

func NewRelayHandler(d Deps) *RelayHandler {
	return &RelayHandler{d: d}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.d.Logger.WithFields(logrus.Fields{
		"op":         "httpapi.relay",
		"request_id": middleware.GetReqID(r.Context()),
	})

	if !h.d.TelegramConfigured {
		h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: msgNotConfigured})
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		log.WithError(err).Warn("Failed to decode relay request")
		h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: msgBadRequest})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: msgEmptyReport})
		return
	}
	if strings.TrimSpace(req.AccountEmail) == "" {
		h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: msgNoAccount})
		return
	}

	date := training.DateOf(h.d.Clock.Now().In(h.d.Location))
	if req.DateISO != "" {
		parsed, err := training.ParseDate(req.DateISO)
		if err != nil {
			h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: msgBadDate})
			return
		}
		date = parsed
	}

	source := notification.SourceManualReport
	if req.Source == string(notification.SourceAutoReport) {
		source = notification.SourceAutoReport
	}

	res, err := h.d.Dispatcher.Dispatch(r.Context(), app.DispatchRequest{
		Source:         source,
		AccountEmail:   app.NormalizeEmail(req.AccountEmail),
		Date:           date,
		SlotKey:        req.SlotKey,
		Text:           req.Text,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	switch {
	case err == nil && res.Duplicate:
		h.respond(w, r, http.StatusOK, RelayResponse{OK: true, Message: msgDuplicate, Duplicate: true, Key: res.Key})
	case err == nil:
		h.respond(w, r, http.StatusOK, RelayResponse{OK: true, Message: msgSent, Key: res.Key})
	case errors.Is(err, app.ErrValidation):
		h.respond(w, r, http.StatusBadRequest, RelayResponse{Message: err.Error()})
	case errors.Is(err, app.ErrNetwork), errors.Is(err, app.ErrTimeout):
		log.WithError(err).Warn("Relay delivery failed")
		h.respond(w, r, http.StatusBadGateway, RelayResponse{Message: telegramErrorFmt + err.Error(), Key: res.Key})
	default:
		log.WithError(err).Error("Relay dispatch error")
		h.respond(w, r, http.StatusInternalServerError, RelayResponse{Message: msgInternal})
	}
}

func (h *RelayHandler) respond(w http.ResponseWriter, r *http.Request, status int, body RelayResponse) {
	h.d.Metrics.RelayRequest(strconv.Itoa(status))
	render.Status(r, status)
	render.JSON(w, r, body)
}
