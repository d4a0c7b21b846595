package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sozercan/patentgpt/apimodels"
	"github.com/sozercan/patentgpt/internal/analyzer"
)

const (
	missingQueryMessage    = "Query parameter is required"
	processingErrorMessage = "An error occurred while processing your request"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := apimodels.AnalysisRequest{
		Query: params.Get("query"),
		Model: params.Get("model"),
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, apimodels.CodeMissingQuery, missingQueryMessage)
		return
	}

	slog.Debug("Received analysis request", "request", req)

	result, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		if errors.Is(err, analyzer.ErrMissingQuery) {
			writeError(w, http.StatusBadRequest, apimodels.CodeMissingQuery, missingQueryMessage)
			return
		}
		slog.Error("Error processing request",
			"error", err,
			"query", req.Query,
			"model", req.Model,
			"request_id", middleware.GetReqID(r.Context()),
		)
		message := err.Error()
		if message == "" {
			message = processingErrorMessage
		}
		writeError(w, http.StatusInternalServerError, apimodels.CodeProcessingError, message)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apimodels.HealthResponse{Status: "ok"})
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusTooManyRequests, apimodels.CodeRateLimited,
		"Too many requests, please try again later.")
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, apimodels.CodeNotFound, "Cannot "+r.Method+" "+r.URL.Path)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, apimodels.CodeMethodNotAllowed, "Method not allowed")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apimodels.NewError(code, message))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"PROCESSING_ERROR","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
