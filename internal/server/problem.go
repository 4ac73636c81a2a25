package server

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound     = "https://driftwatch.io/problems/not-found"
	ProblemTypeBadRequest   = "https://driftwatch.io/problems/bad-request"
	ProblemTypeInternal     = "https://driftwatch.io/problems/internal-error"
	ProblemTypeUnauthorized = "https://driftwatch.io/problems/unauthorized"
	ProblemTypeForbidden    = "https://driftwatch.io/problems/forbidden"
	ProblemTypeRateLimited  = "https://driftwatch.io/problems/rate-limited"
	ProblemTypeConflict     = "https://driftwatch.io/problems/conflict"
)

var problemTypes = map[int]string{
	http.StatusNotFound:            ProblemTypeNotFound,
	http.StatusBadRequest:          ProblemTypeBadRequest,
	http.StatusInternalServerError: ProblemTypeInternal,
	http.StatusUnauthorized:        ProblemTypeUnauthorized,
	http.StatusForbidden:           ProblemTypeForbidden,
	http.StatusTooManyRequests:     ProblemTypeRateLimited,
	http.StatusConflict:            ProblemTypeConflict,
}

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type" example:"https://driftwatch.io/problems/not-found"`
	Title    string `json:"title" example:"Not Found"`
	Status   int    `json:"status" example:"404"`
	Detail   string `json:"detail,omitempty" example:"stream not found"`
	Instance string `json:"instance,omitempty" example:"/api/v1/source/streams/cpu-load"`
}

// WriteProblem encodes p with the problem+json media type.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeStatusProblem(w http.ResponseWriter, status int, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     problemTypes[status],
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// NotFound reports a missing resource as a 404 problem.
func NotFound(w http.ResponseWriter, detail, instance string) {
	writeStatusProblem(w, http.StatusNotFound, detail, instance)
}

// BadRequest reports a rejected input as a 400 problem.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	writeStatusProblem(w, http.StatusBadRequest, detail, instance)
}

// InternalError reports a server fault as a 500 problem.
func InternalError(w http.ResponseWriter, detail, instance string) {
	writeStatusProblem(w, http.StatusInternalServerError, detail, instance)
}

// RateLimited reports throttling as a 429 problem.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	writeStatusProblem(w, http.StatusTooManyRequests, detail, instance)
}
