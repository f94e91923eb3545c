package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
)

// Encode data to json and sent to io.Writer interface
func Encode(w io.Writer, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

// Decode json from io.Reader set it to value pointer
func Decode(r io.Reader, vPrt interface{}) error {
	return json.NewDecoder(r).Decode(vPrt)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (a *App) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := Encode(w, data); err != nil {
		a.logger.Warnw("error writing response", "err", err.Error())
	}
}

// writeError maps the service error kinds onto status codes.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		a.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validationErr.Error(), Field: validationErr.Field})
	case errors.Is(err, models.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, models.ErrAuth):
		a.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authorized"})
	case errors.Is(err, models.ErrProvider):
		a.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "calendar provider error"})
	default:
		a.logger.Errorw("error handling request", "method", r.Method, "path", r.URL.Path, "err", err.Error())
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, models.NewValidationError(name, fmt.Sprintf("%q is not a valid id", raw))
	}
	return uint(id), nil
}

func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.logger.Errorw("recovered server", "path", r.URL.Path, "error", fmt.Sprint(err))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
