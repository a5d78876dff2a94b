package endpoint

import "net/http"

// NoContentRenderer writes a status code and no body. Status defaults to 204.
type NoContentRenderer struct {
	Status int
}

// Render implements Renderer.
func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
