package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

var errStoreDisabled = eris.New("store not configured")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case eris.Is(err, model.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case eris.Is(err, model.ErrTerminalState):
		return http.StatusConflict
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, errStoreDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		resp = errorResponse{Error: verr.Reason, Field: verr.Field}
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: internal error",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp = errorResponse{Error: "internal error"}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON document into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("body", "request body is empty")
		}
		return model.NewValidationError("body", err.Error())
	}
	if dec.More() {
		return model.NewValidationError("body", "request body must contain a single JSON document")
	}
	return nil
}
