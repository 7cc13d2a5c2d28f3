package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/db"
	"github.com/mscrnt/dimmctl/pkg/monitor"
)

// DeviceSource reports the last known state of the monitored devices;
// *monitor.Controller is one
type DeviceSource interface {
	Snapshots() []monitor.Snapshot
}

// ReadingSource looks up recorded readings; *db.DB is one
type ReadingSource interface {
	ListReadings(filter db.ReadingFilter) ([]*db.Reading, error)
}

// Sources are what the agent serves. Either may be nil, in which case the
// matching endpoint answers 503.
type Sources struct {
	Devices  DeviceSource
	Readings ReadingSource
}

// Server represents the agent server
type Server struct {
	config     Config
	httpServer *http.Server
	logFile    *os.File
	errorLog   *io.PipeWriter
	log        *logrus.Entry
}

// NewServer creates a new agent server
func NewServer(config Config, sources Sources) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	server := &Server{
		config: config,
		log:    logrus.WithField("component", "agent"),
	}

	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger := logrus.New()
		logger.SetOutput(logFile)
		logger.SetLevel(logrus.GetLevel())
		logger.SetFormatter(logrus.StandardLogger().Formatter)
		server.logFile = logFile
		server.log = logger.WithField("component", "agent")
	}

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		server.closeLog()
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server.errorLog = server.log.WriterLevel(logrus.ErrorLevel)
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.routes(sources),
		TLSConfig:    tlsConfig,
		ErrorLog:     log.New(server.errorLog, "", 0),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

func (s *Server) routes(sources Sources) *http.ServeMux {
	h := &handlers{sources: sources}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.loggingMiddleware(healthHandler))
	mux.HandleFunc("/devices", s.loggingMiddleware(h.devices))
	mux.HandleFunc("/readings", s.loggingMiddleware(h.readings))
	mux.HandleFunc("/host", s.loggingMiddleware(hostHandler))
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Infof("starting agent server on port %d with mTLS", s.config.Port)

	// certificates are already loaded in the TLS config
	err := s.httpServer.ListenAndServeTLS("", "")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down agent server")
	defer s.closeLog()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closeLog() {
	if s.errorLog != nil {
		_ = s.errorLog.Close()
		s.errorLog = nil
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"remote":   r.RemoteAddr,
			"client":   clientCert,
			"duration": time.Since(start),
		}).Info("request")
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}
