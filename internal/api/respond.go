package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/kdimtricp/photobooth/internal/captures"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends v with status. The status line is already out when encoding
// fails, so the failure is only logged.
func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.WithError(err).Debug("Failed to write response body")
	}
}

func (app *App) writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	app.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeError reports client errors as they are and everything else as a
// generic 500 carrying fallbackMessage.
func (app *App) writeError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	var verr *captures.ValidationError
	if errors.As(err, &verr) {
		app.writeErrorBody(w, verr.Status, verr.Code, verr.Message)
		return
	}

	app.Logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).WithError(err).Error("Request failed")

	app.writeErrorBody(w, http.StatusInternalServerError, "Internal server error", fallbackMessage)
}
