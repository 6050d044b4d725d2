package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Topiia/crypto-price-tracker/internal/feed"

	"go.uber.org/zap"
)

// Server answers one-shot historical snapshot requests over HTTP.
// A single configured path is served; everything else is a JSON 404.
type Server struct {
	backfiller  *feed.Backfiller
	path        string
	historySize int
	logger      *zap.Logger
}

func NewServer(backfiller *feed.Backfiller, path string, historySize int, logger *zap.Logger) *Server {
	return &Server{
		backfiller:  backfiller,
		path:        path,
		historySize: historySize,
		logger:      logger,
	}
}

// Handler returns the root HTTP handler with CORS applied to every
// response, including errors and preflight.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serve)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	setHeaders(w)

	switch {
	case r.Method == http.MethodOptions:
		// CORS preflight: headers only.
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && r.URL.Path == s.path:
		s.serveSnapshot(w, r)

	default:
		s.logger.Info("not found",
			zap.String("method", r.Method), zap.String("path", r.URL.Path))
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "Not Found"}`)
	}
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	batch, err := s.backfiller.Backfill(r.Context(), s.historySize)
	if err != nil {
		s.logger.Error("backfill failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": "Internal Server Error"}`)
		return
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		s.logger.Error("failed to encode snapshot", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": "Internal Server Error"}`)
		return
	}

	s.logger.Info("served snapshot",
		zap.String("remote", r.RemoteAddr), zap.Int("ticks", len(batch)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// setHeaders applies the CORS and content-type headers required on every
// response so browser clients on other origins can consume the API.
func setHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type")
	h.Set("Content-Type", "application/json")
}
