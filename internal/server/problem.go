package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound     = "https://hashfleet.io/problems/not-found"
	ProblemTypeBadRequest   = "https://hashfleet.io/problems/bad-request"
	ProblemTypeInternal     = "https://hashfleet.io/problems/internal-error"
	ProblemTypeUnauthorized = "https://hashfleet.io/problems/unauthorized"
	ProblemTypeForbidden    = "https://hashfleet.io/problems/forbidden"
	ProblemTypeRateLimited  = "https://hashfleet.io/problems/rate-limited"
	ProblemTypeConflict     = "https://hashfleet.io/problems/conflict"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type" example:"https://hashfleet.io/problems/bad-request"`
	Title    string `json:"title" example:"Bad Request"`
	Status   int    `json:"status" example:"400"`
	Detail   string `json:"detail,omitempty" example:"invalid device IP address"`
	Instance string `json:"instance,omitempty" example:"/api/v1/telemetry"`
}

// WriteProblem encodes p with the problem+json content type.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeTyped(w http.ResponseWriter, typeURL, title string, status int, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     typeURL,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	writeTyped(w, ProblemTypeNotFound, "Not Found", http.StatusNotFound, detail, instance)
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	writeTyped(w, ProblemTypeBadRequest, "Bad Request", http.StatusBadRequest, detail, instance)
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	writeTyped(w, ProblemTypeInternal, "Internal Server Error", http.StatusInternalServerError, detail, instance)
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	writeTyped(w, ProblemTypeRateLimited, "Too Many Requests", http.StatusTooManyRequests, detail, instance)
}
