package http

import "net/http"

// HandleHealthCheck answers liveness probes with 200 OK for as long as the
// process serves requests.
func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleVersion returns a handler that writes the given version string as
// the plain-text response body.
func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}
