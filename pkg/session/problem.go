// Package session exposes the compilation engine over HTTP: contract
// kind discovery, sessions pinning an instance to a network and budget,
// compile runs with persisted bundles and receipts, and the bearer-auth
// and rate-limit middleware in front of it all.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/22388o/sapio/pkg/contract"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format. Code carries the engine's
// stable error code when the problem came out of a compile pass.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// Code is the engine error code, e.g. "SAPIO/COMPILE/SCHEMA".
	Code string `json:"code,omitempty"`
	// TraceID links the response to the request via X-Request-ID.
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:    fmt.Sprintf("https://sapio.dev/errors/%d", status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get("X-Request-ID"),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteUnprocessable writes a 422 error response.
func WriteUnprocessable(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteCompileError maps a compile pass failure onto a problem
// response. Contract-level failures are 422 with the engine code;
// anything else is treated as internal.
func WriteCompileError(w http.ResponseWriter, err error) {
	cerr, ok := contract.AsError(err)
	if !ok || cerr.Code == contract.CodeInternal {
		WriteInternal(w, err)
		return
	}
	writeProblem(w, &ProblemDetail{
		Type:    "https://sapio.dev/errors/compile",
		Title:   "Compilation Failed",
		Status:  http.StatusUnprocessableEntity,
		Detail:  cerr.Error(),
		Code:    cerr.Code,
		TraceID: w.Header().Get("X-Request-ID"),
	})
}
