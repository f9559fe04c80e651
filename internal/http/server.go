// Package http exposes the operational HTTP surface: health, channel
// status and WhatsApp pairing QR codes. The Meta webhook registers its
// own routes on the same mux.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/omnibothq/omnibot/internal/channels"
)

// QRProvider is implemented by channels that pair via QR code.
type QRProvider interface {
	QRPNG() []byte
}

// StatusHandler reports adapter state and serves pairing codes.
type StatusHandler struct {
	manager *channels.Manager
}

func NewStatusHandler(manager *channels.Manager) *StatusHandler {
	return &StatusHandler{manager: manager}
}

func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/channels", h.handleStatus)
	mux.HandleFunc("GET /v1/channels/whatsapp/{scope}/qr", h.handleWhatsAppQR)
}

func (h *StatusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": h.manager.Status()})
}

// handleWhatsAppQR serves the current pairing QR as PNG. 404 when the
// scope has no WhatsApp instance, 204 when no pairing is in progress.
func (h *StatusHandler) handleWhatsAppQR(w http.ResponseWriter, r *http.Request) {
	tenantID, err := channels.ParseScope(r.PathValue("scope"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown scope"})
		return
	}

	ch, ok := h.manager.Get(tenantID, "whatsapp")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no whatsapp instance"})
		return
	}
	qr, ok := ch.(QRProvider)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no whatsapp instance"})
		return
	}

	png := qr.QRPNG()
	if len(png) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
