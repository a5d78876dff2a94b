package endpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
)

// JSONRenderer encodes Value as JSON with Content-Type "application/json".
// Status defaults to 200. HTML escaping is disabled and json.Encoder appends a
// trailing newline.
//
// If encoding fails after the header was written, the error is returned as a
// best-effort signal; the client may have received a partial body.
type JSONRenderer struct {
	Status int
	Value  any
}

// Render implements Renderer.
func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOrOK(jr.Status))
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}

// RawJSONRenderer writes an already-encoded JSON document. Body must be valid
// JSON; it is written as-is followed by a newline.
type RawJSONRenderer struct {
	Status int
	Body   json.RawMessage
}

// Render implements Renderer.
func (rr *RawJSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	body := bytes.TrimSpace(rr.Body)
	if len(body) == 0 {
		return errors.New("endpoint: empty JSON body")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOrOK(rr.Status))
	_, err := w.Write(append(body, '\n'))
	return err
}

func statusOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
