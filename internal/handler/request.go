package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/reservations/internal/apperror"
)

const maxBodyBytes = 1 << 20

// params holds request fields regardless of how the client sent them.
type params map[string]string

// readParams accepts a JSON object body or a form-encoded one. Form values
// in the URL query are included for form requests.
func readParams(w http.ResponseWriter, r *http.Request) (params, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return readJSONParams(r)
	}

	if err := r.ParseForm(); err != nil {
		return nil, apperror.ValidationFailed("body", "invalid form body")
	}
	p := make(params, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}
	return p, nil
}

func readJSONParams(r *http.Request) (params, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperror.ValidationFailed("body", "invalid JSON body")
	}

	p := make(params, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			p[k] = v
		case json.Number:
			p[k] = v.String()
		case bool:
			p[k] = strconv.FormatBool(v)
		default:
			return nil, apperror.ValidationFailed(k, fmt.Sprintf("%s must be a scalar value", k))
		}
	}
	return p, nil
}

func (p params) str(key string) string {
	return p[key]
}

// integer parses key as a whole number. Missing keys are a validation error.
func (p params) integer(key string) (int, error) {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return 0, apperror.ValidationFailed(key, key+" is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(key, key+" must be an integer")
	}
	return n, nil
}
