package response

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// Status is the body of a setup response.
type Status struct {
	Status string `json:"status"`
	Steps  any    `json:"steps,omitempty"`
}

// WriteStatus writes {"status": status} plus optional per-step detail.
func WriteStatus(w http.ResponseWriter, code int, status string, steps any) {
	WriteJSON(w, code, Status{Status: status, Steps: steps})
}
