package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeNotFound          = "not_found"
	codeOrderNotFound     = "order_not_found"
	codeInvalidBody       = "invalid_request_body"
	codeInvalidID         = "invalid_id"
	codeNoItems           = "order_items_required"
	codeInvalidQuantity   = "invalid_quantity"
	codeInvalidPrice      = "invalid_price"
	codeInvalidStatus     = "invalid_status"
	codeIllegalTransition = "illegal_status_transition"
	codeStatusConflict    = "status_conflict"
	codeInternalError     = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
