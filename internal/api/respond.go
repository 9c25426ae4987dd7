package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/andy/timebill/internal/domain"
)

// Error types reported in the response body
const (
	errNotFound     = "not_found"
	errConflict     = "conflict"
	errValidation   = "validation"
	errBadRequest   = "bad_request"
	errUnauthorized = "unauthorized"
	errInternal     = "internal"
)

// maxBodyBytes caps request bodies; the largest is a generate request.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeServiceError maps an error kind to its status code. Errors without
// a kind are logged and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, errConflict, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, errValidation, err.Error())
	case errors.Is(err, errMalformed):
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, errInternal, "internal error")
	}
}

var errMalformed = errors.New("malformed request")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errMalformed, fmt.Sprintf(format, args...))
}

// decodeJSON reads the request body into v. An empty body is accepted when
// optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return malformed("invalid JSON body: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed("%s must be an integer", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, malformed("%s must be true or false", key)
	}
	return &b, nil
}

func queryString(r *http.Request, key string) *string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	return &raw
}

func parseDate(key, raw string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, malformed("%s must be a date (YYYY-MM-DD)", key)
	}
	return t, nil
}

// optionalDate parses a YYYY-MM-DD value; nil and "" mean unset.
func optionalDate(key string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := parseDate(key, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
