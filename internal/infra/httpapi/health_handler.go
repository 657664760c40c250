package httpapi

import (
	"net/http"

	"attendpro/internal/app"

	"github.com/go-chi/render"
)

type healthResponse struct {
	OK                 bool                  `json:"ok"`
	TelegramConfigured bool                  `json:"telegramConfigured"`
	Scheduler          app.SchedulerSnapshot `json:"scheduler"`
}

type HealthHandler struct {
	status     StatusSource
	configured bool
}

func NewHealthHandler(status StatusSource, telegramConfigured bool) *HealthHandler {
	return &HealthHandler{status: status, configured: telegramConfigured}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, TelegramConfigured: h.configured}
	if h.status != nil {
		resp.Scheduler = h.status.Snapshot()
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}
