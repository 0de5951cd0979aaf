package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"corsserve/config"
	"corsserve/filestore"
	"corsserve/logger"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

const shutdownTimeout = 10 * time.Second

// Server serves a document root over plain HTTP with CORS headers on every response
type Server struct {
	router   *mux.Router
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	cfg      config.ServerConfig
	root     *filestore.DocRoot
	log      *logger.Logger

	done     chan struct{}
	serveErr error
	stopOnce sync.Once
	stopErr  error
}

// NewServer opens the configured document root and builds the handler chain.
// It does not bind; call Start for that.
func NewServer(cfg *config.Config, log *logger.Logger) (*Server, error) {
	root, err := filestore.Open(cfg.Server.Root)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg.Server,
		root:   root,
		log:    log,
		done:   make(chan struct{}),
	}
	s.setupRoutes()

	// Outermost first: CORS, access log, recovery, compression, router.
	// CORS wraps the whole router so its 404/405 replies carry the headers.
	var h http.Handler = s.router
	if s.cfg.Compress {
		h = gzhttp.GzipHandler(h)
	}
	h = s.RecoverMiddleware(h)
	h = s.LoggingMiddleware(h)
	s.handler = CORSMiddleware(h)

	return s, nil
}

// Handler returns the complete middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Root returns the absolute document root directory
func (s *Server) Root() string {
	return s.root.Dir()
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly and leaves nothing open. The server stops when ctx is
// cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return errors.New("server already started")
	}

	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.GetReadHeaderTimeout(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,

		// Route "OPTIONS *" through the handler chain so it gets CORS headers
		DisableGeneralOptionsHandler: true,
	}

	s.log.Info("Starting static server", map[string]interface{}{
		"addr": ln.Addr().String(),
		"root": s.root.Dir(),
		"timeouts": map[string]string{
			"read_header": s.cfg.GetReadHeaderTimeout().String(),
			"read":        s.cfg.GetReadTimeout().String(),
			"write":       s.cfg.GetWriteTimeout().String(),
			"idle":        s.cfg.GetIdleTimeout().String(),
		},
	})

	go func() {
		defer close(s.done)
		if err := s.server.Serve(newCORSListener(ln)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Static server error", map[string]interface{}{
				"error": err.Error(),
			})
			s.serveErr = err
		}
	}()

	// Wait for context cancellation
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.done:
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the browser-facing URL for a path under the root
func (s *Server) URL(path string) string {
	port := s.cfg.Port
	if tcp, ok := s.listenerAddr(); ok {
		port = tcp.Port
	}
	return fmt.Sprintf("http://localhost:%d/%s", port, strings.TrimPrefix(path, "/"))
}

func (s *Server) listenerAddr() (*net.TCPAddr, bool) {
	if s.listener == nil {
		return nil, false
	}
	tcp, ok := s.listener.Addr().(*net.TCPAddr)
	return tcp, ok
}

// Wait blocks until the serve loop exits. It returns an error only when the
// loop ended for a reason other than Shutdown.
func (s *Server) Wait() error {
	if s.server == nil {
		return errors.New("server not started")
	}
	<-s.done
	return s.serveErr
}

// Shutdown gracefully shuts down the server and releases the document root.
// It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		s.log.Info("Shutting down static server", nil)

		// Create a timeout context for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if s.server != nil {
			if err := s.server.Shutdown(ctx); err != nil {
				s.stopErr = fmt.Errorf("server shutdown failed: %w", err)
				s.server.Close()
			}
		}

		if err := s.root.Close(); err != nil && s.stopErr == nil {
			s.stopErr = fmt.Errorf("failed to close document root: %w", err)
		}
	})
	return s.stopErr
}
