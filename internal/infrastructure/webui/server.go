package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/doeshing/mmrl-go/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a Host over HTTP on a loopback listener. Any failure is
// reported as 404.
type Server struct {
	host       *Host
	domain     string
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     ports.Logger

	mu      sync.Mutex
	running bool
	serveCh chan error
}

// NewServer binds the listener. The server is not started until Start is called.
func NewServer(host *Host, domainName, listenAddr string, logger ports.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	s := &Server{
		host:     host,
		domain:   strings.ToLower(domainName),
		listener: listener,
		addr:     listener.Addr().String(),
		logger:   logger,
		serveCh:  make(chan error, 1),
	}
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Router returns the request router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	r.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).HandlerFunc(s.handle)
	r.Use(s.hostGuard)
	return r
}

// Start begins accepting connections. This is non-blocking.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("webui server already running")
	}
	s.running = true
	go func() {
		err := s.httpServer.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveCh <- err
	}()
	s.logger.Info("webui server started", map[string]interface{}{
		"addr":   s.addr,
		"module": s.host.ModuleID(),
	})
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return s.listener.Close()
	}
	s.running = false
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	if serveErr := <-s.serveCh; err == nil {
		err = serveErr
	}
	return err
}

// Address returns the server's address (e.g., "127.0.0.1:54321").
func (s *Server) Address() string {
	return s.addr
}

// URL returns the entry URL of the served module.
func (s *Server) URL() string {
	return "http://" + s.addr + "/" + IndexFile
}

// IsRunning returns true if the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// hostGuard accepts only the synthetic domain or the listener's own address.
func (s *Server) hostGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allowedHost(r.Host) {
			s.logger.Debug("webui host rejected", map[string]interface{}{
				"host": r.Host,
			})
			notFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedHost(hostport string) bool {
	hostport = strings.ToLower(hostport)
	if hostport == s.addr {
		return true
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return host == s.domain
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	content, err := s.host.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		s.logger.Debug("webui resolve failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		notFound(w, r)
		return
	}
	header := w.Header()
	header.Set("Content-Type", content.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(content.Data)))
	header.Set("Cache-Control", "no-store")
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(content.Data)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, "not found", http.StatusNotFound)
}
