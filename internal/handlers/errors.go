package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Kind `json:"code"`
	Message string      `json:"message"`
}

// respondWithError maps err to its status. Server-side causes are logged and
// replaced with a generic message.
func respondWithError(w http.ResponseWriter, log *logger.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)

	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "kind", string(kind), "error", err.Error())
		msg = ErrInternalServerError
		if kind == apperr.KindOracleUnavailable {
			msg = ErrOracleUnavailable
		}
	}
	if kind == apperr.KindBusyTryAgain {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, status, errorBody{Error: errorDetail{Code: kind, Message: msg}})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindInvalidRequest, "request body is empty")
		}
		return apperr.New(apperr.KindInvalidRequest, "invalid request body: %v", err)
	}
	if dec.More() {
		return apperr.New(apperr.KindInvalidRequest, "request body has trailing data")
	}
	return nil
}
