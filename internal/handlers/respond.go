package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Novip1906/tasks-live/internal/contextkeys"
	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/pkg/logging"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// statusFor maps domain errors onto HTTP statuses. Anything unrecognised is
// a 500 and its text is not sent to the client.
func statusFor(err error) (int, string) {
	switch {
	case appErrors.IsAuth(err):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, appErrors.ErrTaskNotFound), errors.Is(err, appErrors.ErrSearchDisabled):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, appErrors.ErrUsernameTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, appErrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, appErrors.ErrStoreUnavailable.Error()
	case errors.Is(err, appErrors.ErrMissingFields), errors.Is(err, appErrors.ErrInvalidParams):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := statusFor(err)

	log := contextkeys.GetLogger(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error("request error", logging.Err(err))
	} else {
		log.Debug("request rejected", logging.Err(err))
	}

	respondWithJSON(w, code, errorResponse{Error: message})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return appErrors.ErrInvalidParams
	}
	return nil
}
