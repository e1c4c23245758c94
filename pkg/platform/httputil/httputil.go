// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "dealroom/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	EntityID         string `json:"entity_id,omitempty"`
	CurrentState     string `json:"current_state,omitempty"`
	AttemptedState   string `json:"attempted_state,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeUnauthenticated:        http.StatusUnauthorized,
	dErrors.CodeForbidden:              http.StatusForbidden,
	dErrors.CodeInvalidState:           http.StatusConflict,
	dErrors.CodeValidation:             http.StatusUnprocessableEntity,
	dErrors.CodeDuplicate:              http.StatusConflict,
	dErrors.CodeConcurrentModification: http.StatusConflict,
	dErrors.CodeNotFound:               http.StatusNotFound,
	dErrors.CodeInternal:               http.StatusInternalServerError,
}

// StatusFor maps a domain code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes err as JSON. Internal errors never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: string(dErrors.CodeInternal)}
	status := http.StatusInternalServerError
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		status = StatusFor(de.Code)
		resp = ErrorResponse{
			Error:            string(de.Code),
			ErrorDescription: de.Message,
			EntityID:         de.EntityID,
			CurrentState:     de.CurrentState,
			AttemptedState:   de.AttemptedState,
		}
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// An empty body leaves dst at its zero value; Validate decides if that is enough.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request body")
	}
	return nil
}
