// Package api provides the HTTP JSON API for jpxetf.
//
// It exposes ETF compositions, fees, security-master names, market data,
// return rankings and cache state.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/datasource"
	"github.com/seenimoa/jpxetf/internal/etf"
	"github.com/seenimoa/jpxetf/internal/infra"
	"github.com/seenimoa/jpxetf/internal/logger"
	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	agg     *datasource.Aggregator
	log     logrus.FieldLogger
	version string
	now     func() time.Time
}

// Options configures a Server. Zero fields get defaults.
type Options struct {
	Version string
	Log     logrus.FieldLogger
	Now     func() time.Time
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, agg *datasource.Aggregator, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		cfg:     cfg,
		agg:     agg,
		log:     logger.WithComponent(opts.Log, "api"),
		version: opts.Version,
		now:     opts.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// ETF composition
		r.Get("/etf/{code}", s.handleETF)
		r.Get("/etf/{code}/top", s.handleTop)

		// Side data
		r.Get("/fees/{code}", s.handleFee)
		r.Get("/names/{code}", s.handleName)
		r.Get("/market/{code}", s.handleMarket)
		r.Get("/ranking", s.handleRanking)

		// Config & cache
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/sources", s.handleGetSources)
		r.Get("/cache", s.handleCacheStatus)
		r.Post("/cache/refresh", s.handleCacheRefresh)
		r.Delete("/cache", s.handleCacheClear)
	})

	return r
}

// ════════════════════════════════════════════════════════════════════
// Response types
// ════════════════════════════════════════════════════════════════════

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ETFResponse is the payload of GET /api/v1/etf/{code}.
type ETFResponse struct {
	Info       models.ETFInfo   `json:"info"`
	Holdings   []models.Holding `json:"holdings"`
	Fee        *float64         `json:"fee"`
	NAV        int64            `json:"nav"`
	NAVDisplay string           `json:"nav_display"`
	Warnings   []models.Warning `json:"warnings,omitempty"`
}

// TopResponse is the payload of GET /api/v1/etf/{code}/top.
type TopResponse struct {
	Code     string              `json:"code"`
	Holdings []models.TopHolding `json:"holdings"`
	Warnings []models.Warning    `json:"warnings,omitempty"`
}

// FeeResponse is the payload of GET /api/v1/fees/{code}.
type FeeResponse struct {
	Code string  `json:"code"`
	Fee  float64 `json:"fee"`
}

// NameResponse is the payload of GET /api/v1/names/{code}.
type NameResponse struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Source infra.Outcome `json:"source"`
}

// MarketResponse is the payload of GET /api/v1/market/{code}.
type MarketResponse struct {
	Code   string             `json:"code"`
	Entry  models.MarketEntry `json:"entry"`
	Source infra.Outcome      `json:"source"`
}

// RankingResponse is the payload of GET /api/v1/ranking.
type RankingResponse struct {
	Period  models.Period      `json:"period"`
	N       int                `json:"n"`
	Lang    models.Lang        `json:"lang"`
	Entries []models.RankEntry `json:"entries"`
}

// ════════════════════════════════════════════════════════════════════
// Handlers
// ════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":     "ok",
			"version":    s.version,
			"pcf_status": utils.PCFStatus(now),
			"time_jst":   utils.FormatDateTimeJST(now),
		},
	})
}

func (s *Server) handleETF(w http.ResponseWriter, r *http.Request) {
	e, ok := s.etfFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	info, err := e.Info(ctx)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	holdings, _ := e.Holdings(ctx)
	nav, _ := e.NAV(ctx)

	resp := ETFResponse{
		Info:       info,
		Holdings:   holdings,
		NAV:        nav,
		NAVDisplay: utils.FormatYen(nav),
		Warnings:   e.Warnings(),
	}
	if fee, ok := e.Fee(ctx); ok {
		resp.Fee = &fee
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	e, ok := s.etfFromRequest(w, r)
	if !ok {
		return
	}
	n, err := intQuery(r, "n", etf.DefaultTopN)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	top, err := e.Top(r.Context(), n)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    TopResponse{Code: e.Code(), Holdings: top, Warnings: e.Warnings()},
	})
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	fee, found := etf.New(code, s.agg, etf.Options{Log: s.log}).Fee(r.Context())
	if !found {
		writeError(w, http.StatusNotFound, "no fee available for "+code)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: FeeResponse{Code: code, Fee: fee}})
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	res := s.agg.Names(r.Context(), false)
	name, found := res.Value[code]
	if !found {
		writeError(w, http.StatusNotFound, "no name available for "+code)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    NameResponse{Code: code, Name: name, Source: res.Source},
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	res := s.agg.Market(r.Context(), false)
	entry, found := res.Value[code]
	if !found {
		writeError(w, http.StatusNotFound, "no market data for "+code)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    MarketResponse{Code: code, Entry: entry, Source: res.Source},
	})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period := models.Period1M
	if raw := q.Get("period"); raw != "" {
		p, err := models.ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		period = p
	}
	n, err := intQuery(r, "n", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lang, ok := s.langFromRequest(w, r)
	if !ok {
		return
	}

	entries, err := etf.Ranking(r.Context(), s.agg, period, n, lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    RankingResponse{Period: period, N: n, Lang: lang, Entries: entries},
	})
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func (s *Server) etfFromRequest(w http.ResponseWriter, r *http.Request) (*etf.ETF, bool) {
	code, ok := codeParam(w, r)
	if !ok {
		return nil, false
	}
	lang, ok := s.langFromRequest(w, r)
	if !ok {
		return nil, false
	}
	return etf.New(code, s.agg, etf.Options{Lang: lang, Log: s.log}), true
}

// codeParam resolves aliases and validates the {code} path parameter.
func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := utils.ResolveCode(chi.URLParam(r, "code"))
	if !utils.ValidCode(code) {
		writeError(w, http.StatusBadRequest, "invalid security code: "+strconv.Quote(code))
		return "", false
	}
	return code, true
}

func (s *Server) langFromRequest(w http.ResponseWriter, r *http.Request) (models.Lang, bool) {
	raw := r.URL.Query().Get("lang")
	if raw == "" {
		raw = s.cfg.Lang
	}
	lang, err := models.ParseLang(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return lang, true
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

// statusFor maps the datasource error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datasource.ErrNotPublished):
		return http.StatusServiceUnavailable
	case errors.Is(err, datasource.ErrNoProviders):
		return http.StatusInternalServerError
	case errors.Is(err, datasource.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, datasource.ErrParse), errors.Is(err, datasource.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("status", status).Warn("upstream request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
