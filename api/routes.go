package api

import (
	"net/http"
	"strings"
)

var allowedMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// setupRoutes initializes the preflight and static routes
func (s *Server) setupRoutes() {
	// Traversal is rejected by filestore.Clean; mux's own cleaning would
	// redirect "/../x" to "/x" instead of refusing it.
	s.router.SkipClean(true)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Preflight for any path, whether or not it exists
	s.router.Methods(http.MethodOptions).HandlerFunc(s.handlePreflight)

	s.router.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).HandlerFunc(s.handleStatic)
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	SendNotFound(w, r.URL.Path)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	SendError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not supported")
}
