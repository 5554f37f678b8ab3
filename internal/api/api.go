// Package api serves the dashboard page, JSON endpoints and table downloads.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/rs/cors"
	"github.com/urfave/negroni"
	"go.uber.org/zap"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

// DataSource is the caption shown under the dashboard.
const DataSource = "CoinGecko"

// MarketData is what the API needs from the market data service.
type MarketData interface {
	Coins(ctx context.Context) ([]domain.CoinInfo, error)
	Markets(ctx context.Context, q domain.Query) ([]domain.CoinRecord, error)
	History(ctx context.Context, q domain.Query) ([]*domain.HistoricalSeries, error)
	CachedItems() int
}

// Options configures an API.
type Options struct {
	Service      MarketData
	Coins        []string // selectable coin ids
	DefaultCoins []string // preselected on first visit
	Currencies   []string // first entry is the default
	LookbackDays int      // default history range, ending today
	CORSOrigins  []string // empty disables CORS headers
	Logger       *zap.Logger
	Now          func() time.Time
}

// API holds HTTP handlers and their state.
type API struct {
	svc          MarketData
	coins        []string
	defaultCoins []string
	currencies   []string
	lookbackDays int
	corsOrigins  []string
	logger       *zap.Logger
	now          func() time.Time
	queryDecoder *schema.Decoder

	mu        sync.Mutex
	started   time.Time
	requests  int
	lastFetch time.Time
	lastError string
}

// New creates a new API.
func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &API{
		svc:          opts.Service,
		coins:        opts.Coins,
		defaultCoins: opts.DefaultCoins,
		currencies:   opts.Currencies,
		lookbackDays: opts.LookbackDays,
		corsOrigins:  opts.CORSOrigins,
		logger:       opts.Logger,
		now:          opts.Now,
		queryDecoder: decoder,
		started:      opts.Now(),
	}
}

// Router returns the route table without middleware.
func (api *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(api.instrument)

	r.HandleFunc("/", api.Dashboard).Methods(http.MethodGet).Name("dashboard")
	r.HandleFunc("/charts", api.Charts).Methods(http.MethodGet).Name("charts")

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/coins", api.GetCoins).Methods(http.MethodGet).Name("api_coins")
	a.HandleFunc("/markets", api.GetMarkets).Methods(http.MethodGet).Name("api_markets")
	a.HandleFunc("/history", api.GetHistory).Methods(http.MethodGet).Name("api_history")
	a.HandleFunc("/dominance", api.GetDominance).Methods(http.MethodGet).Name("api_dominance")

	r.HandleFunc("/export/{table:markets|history}.{format:csv|xlsx}", api.Export).
		Methods(http.MethodGet).Name("export")

	r.HandleFunc("/health", api.Health).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/status", api.Status).Methods(http.MethodGet).Name("status")
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet).Name("metrics")

	return r
}

// Handler returns the router behind the negroni middleware chain.
func (api *API) Handler() http.Handler {
	recovery := negroni.NewRecovery()
	recovery.Logger = zap.NewStdLog(api.logger)
	recovery.PrintStack = false

	n := negroni.New(recovery, negroni.HandlerFunc(api.logRequest))
	if len(api.corsOrigins) > 0 {
		n.Use(cors.New(cors.Options{
			AllowedOrigins: api.corsOrigins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}
	n.UseHandler(api.Router())
	return n
}

// logRequest logs every request once it has been served.
func (api *API) logRequest(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)

	status := http.StatusOK
	if rw, ok := w.(negroni.ResponseWriter); ok && rw.Status() != 0 {
		status = rw.Status()
	}
	api.logger.Info("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	)
}

// instrument counts served requests per named route.
func (api *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil && cur.GetName() != "" {
			route = cur.GetName()
		}
		observability.RecordHTTPRequest(route, sw.status)

		api.mu.Lock()
		api.requests++
		api.mu.Unlock()
	})
}

// noteFetch records the outcome of a data fetch for /status.
func (api *API) noteFetch(err error) {
	if errors.Is(err, domain.ErrInvalidQuery) {
		return
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if err != nil {
		api.lastError = err.Error()
		return
	}
	api.lastFetch = api.now()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
