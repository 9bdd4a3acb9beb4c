package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the JSON response shape every endpoint uses (§6): data is
// omitted on failure.
type Envelope struct {
	Success bool `json:"success"`
	Message string `json:"message"`
	Data    any  `json:"data,omitempty"`
}

// Respond writes a successful envelope with the given status and data.
func Respond(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Message: message, Data: data})
}

// RespondError writes a failure envelope; data is always omitted.
func RespondError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{Success: false, Message: message})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
