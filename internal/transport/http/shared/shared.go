// Package shared holds the JSON envelope helpers used by every handler
// package so error responses stay uniform across the API.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"medledger/internal/ledger"
	dErrors "medledger/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope. Reason carries the stable
// revert string when the failure came from a ledger call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain or revert error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: string(dErrors.CodeOf(err))}

	var rev *ledger.RevertError
	if errors.As(err, &rev) {
		resp.Reason = rev.Reason
	} else {
		var de *dErrors.DomainError
		if errors.As(err, &de) {
			resp.Reason = de.Message
		}
	}

	WriteJSON(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), resp)
}
