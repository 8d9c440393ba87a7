package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-quiz/internal/assessment"
)

var validate = validator.New()

func init() {
	// report fields by their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type errorBody struct {
	Kind    assessment.Kind   `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusFor(k assessment.Kind) int {
	switch k.Class() {
	case assessment.KindUnauthorized:
		return http.StatusUnauthorized
	case assessment.KindForbidden:
		return http.StatusForbidden
	case assessment.KindNotFound:
		return http.StatusNotFound
	case assessment.KindBadRequest:
		return http.StatusBadRequest
	case assessment.KindConflict:
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// writeError renders err in the error envelope. Upstream messages pass through.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	k := assessment.KindOf(err)
	status := statusFor(k)
	if status >= 500 {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]errorBody{"error": {Kind: k, Message: err.Error()}})
}

func writeBadRequest(w http.ResponseWriter, msg string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{
		"error": {Kind: assessment.KindBadRequest, Message: msg, Fields: fields},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body and runs struct validation. It writes the 400
// itself and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	// an empty body decodes as {} and is left to validation
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "bad json", nil)
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fieldPath(fe)] = fe.Tag()
			}
			writeBadRequest(w, "validation failed", fields)
			return false
		}
		writeBadRequest(w, err.Error(), nil)
		return false
	}
	return true
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
