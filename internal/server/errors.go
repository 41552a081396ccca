package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/compose"
	"github.com/BattermanZ/StaleFlix/internal/inline"
	"github.com/BattermanZ/StaleFlix/internal/store"
)

var (
	errNotFound   = errors.New("not found")
	errBadRequest = errors.New("bad request")
)

// apiError is the body of every JSON error response.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// toHTTP maps an error to a status code and a response body. Domain errors
// keep their message; anything else is reported as an internal error.
func toHTTP(err error) (int, errorResponse) {
	var (
		fetchErr   *store.FetchError
		submitErr  *backend.SubmitError
		composeErr *compose.ComposeError
	)
	status, code, msg := http.StatusInternalServerError, "internal", "internal error"
	switch {
	case err == nil:
	case errors.Is(err, errNotFound):
		status, code, msg = http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, errBadRequest):
		status, code, msg = http.StatusBadRequest, "invalid_argument", err.Error()
	case errors.Is(err, store.ErrRefreshInProgress):
		status, code, msg = http.StatusConflict, "refresh_in_progress", err.Error()
	case errors.As(err, &fetchErr):
		status, code, msg = http.StatusBadGateway, "fetch_failed", err.Error()
	case errors.As(err, &submitErr):
		status, code, msg = http.StatusBadGateway, "submit_failed", err.Error()
	case errors.As(err, &composeErr):
		status, code, msg = http.StatusUnprocessableEntity, "compose_failed", err.Error()
	case errors.Is(err, inline.ErrMalformed):
		status, code, msg = http.StatusUnprocessableEntity, "malformed_markup", err.Error()
	}
	return status, errorResponse{Error: apiError{Code: code, Message: msg}}
}

// writeError writes the JSON error envelope with the request id attached.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := toHTTP(err)
	resp.Error.RequestID = r.Header.Get("X-Request-Id")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// fail reports err as JSON or as an error page, depending on the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if wantsJSON(r) {
		writeError(w, r, err)
		return
	}
	status, resp := toHTTP(err)
	s.render(w, "error.html", status, map[string]any{
		"Status":    status,
		"Error":     resp.Error,
		"RequestID": r.Header.Get("X-Request-Id"),
	})
}
