package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
)

const maxBodyBytes = 1 << 20

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": msg, "code": errorCode(code)})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return assignment.KindValidation
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return assignment.KindUnauthorized
	case http.StatusNotFound:
		return assignment.KindNotFound
	case http.StatusConflict:
		return assignment.KindConflict
	case http.StatusPreconditionFailed:
		return assignment.KindPreconditionFailed
	case http.StatusUnprocessableEntity:
		return assignment.KindInvalidTransition
	default:
		return assignment.KindInternal
	}
}

// statusFor maps an orchestrator error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case assignment.KindNotFound:
		return http.StatusNotFound
	case assignment.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case assignment.KindConflict:
		return http.StatusConflict
	case assignment.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case assignment.KindUnauthorized:
		return http.StatusForbidden
	case assignment.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders an orchestrator error. Invalid transitions carry the
// current state and the legal next states so clients can resync.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := assignment.Kind(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		log.Printf("www: %s %s: %v", r.Method, r.URL.Path, err)
		h.jsonStatus(w, code, map[string]string{"error": "internal error", "code": kind})
		return
	}
	body := map[string]any{"error": err.Error(), "code": kind}
	var ite *assignment.InvalidTransitionError
	if errors.As(err, &ite) {
		body["current"] = ite.Current
		body["target"] = ite.Target
		body["allowed"] = ite.Allowed
	}
	h.jsonStatus(w, code, body)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int64) int64 {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func queryFloat(r *http.Request, name string) (float64, error) {
	f, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
