package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Problem{Title: title, Detail: detail, Status: status}); err != nil {
		slog.Debug("problem encode failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func taskNotFound(w http.ResponseWriter) {
	writeProblem(w, http.StatusNotFound, "Task not found", "No task with the given id exists.")
}
