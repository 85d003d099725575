package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/intake/internal/settings"
)

type SettingsHandler struct {
	settings *settings.Service
	logger   *slog.Logger
}

func NewSettingsHandler(ss *settings.Service, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.All(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// Update saves the given keys after checking that the resulting settings
// still form a valid policy.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	all, err := h.settings.Update(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}
