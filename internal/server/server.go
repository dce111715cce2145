package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fusionswap/internal/chain"
	"fusionswap/internal/config"
	"fusionswap/internal/hmacauth"
	"fusionswap/internal/store"
	"fusionswap/internal/swap"
)

// Server is the operator surface: swap lookup, operator-signed
// cancellation, health and metrics. It never initiates swaps; those come
// from the resolver loop, not HTTP.
type Server struct {
	cfg      *config.AppConfig
	coord    *swap.Coordinator
	store    store.Store
	operator *hmacauth.Verifier

	httpServer *http.Server
	metrics    *metricsRegistry
	log        zerolog.Logger

	dbHealthFn  func(context.Context) error
	srcHealthFn func(context.Context) error
	dstHealthFn func(context.Context) error
}

type pinger interface {
	Ping(context.Context) error
}

func NewServer(cfg *config.AppConfig, coord *swap.Coordinator, st store.Store, src, dst chain.Client, reg *prometheus.Registry, log zerolog.Logger) *Server {
	operator := &hmacauth.Verifier{
		Secret:  cfg.Service.OperatorSecret,
		MaxSkew: cfg.Service.HMACClockSkew,
	}

	s := &Server{
		cfg:      cfg,
		coord:    coord,
		store:    st,
		operator: operator,
		metrics:  newMetricsRegistry(reg),
		log:      log,
	}

	if checker, ok := st.(pinger); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := src.(pinger); ok {
		s.srcHealthFn = checker.Ping
	}
	if checker, ok := dst.(pinger); ok {
		s.dstHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/swaps/", s.handleSwaps)
	mux.Handle("/api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

const swapsPrefix = "/api/v1/swaps/"

// handleSwaps dispatches GET /swaps/{id} and POST /swaps/{id}/cancel.
// Only the mutating cancel path requires an operator signature.
func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, swapsPrefix)

	switch {
	case r.Method == http.MethodGet && rest != "" && !strings.Contains(rest, "/"):
		s.handleGetSwap(w, r, rest)
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/cancel"):
		id := strings.TrimSuffix(rest, "/cancel")
		s.operator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handleCancel(w, r, id)
		})).ServeHTTP(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.metrics.incRequest("get_swap", "error")
		http.Error(w, "lookup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		s.metrics.incRequest("get_swap", "not_found")
		http.Error(w, "unknown swap", http.StatusNotFound)
		return
	}

	s.metrics.incRequest("get_swap", "ok")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.coord.CancelSwap(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, swap.ErrUnknownSwap):
			s.metrics.incCancel("not_found")
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, swap.ErrSwapSettled):
			s.metrics.incCancel("settled")
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			var early *swap.NotYetCancellableError
			if errors.As(err, &early) {
				s.metrics.incCancel("too_early")
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			s.metrics.incCancel("failed")
			s.log.Error().Err(err).Str("swap_id", id).Msg("operator cancel failed")
			http.Error(w, "cancel failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	s.metrics.incCancel("cancelled")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	type rpcInfo struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}

	probe := func(fn func(context.Context) error) rpcInfo {
		if fn == nil {
			return rpcInfo{Connected: true}
		}
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := fn(probeCtx); err != nil {
			overallHealthy = false
			return rpcInfo{Connected: false, Error: err.Error()}
		}
		return rpcInfo{
			Connected: true,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
	}

	srcInfo := probe(s.srcHealthFn)
	dstInfo := probe(s.dstHealthFn)

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status           string      `json:"status"`
		SourceChain      rpcInfo     `json:"sourceChain"`
		DestinationChain rpcInfo     `json:"destinationChain"`
		Database         interface{} `json:"database"`
	}{
		Status:           status,
		SourceChain:      srcInfo,
		DestinationChain: dstInfo,
		Database:         dbInfo,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", uuid.NewString())
		}
		next.ServeHTTP(w, r)
	})
}
