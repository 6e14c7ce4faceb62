// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the public HTTP surface of the node.
package api

import (
	"net/http"
	"net/http/pprof"
	"strings"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rtask/rtask/api/restutil"
	"github.com/rtask/rtask/api/tasks"
	"github.com/rtask/rtask/api/wallet"
	"github.com/rtask/rtask/api/worker"
	"github.com/rtask/rtask/checkout"
	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/health"
	"github.com/rtask/rtask/heartbeat"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/log"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool

	// LogRequests overrides EnableReqLogger when set, letting the admin
	// server flip request logging at runtime.
	LogRequests *atomic.Bool
}

// New returns the api router.
func New(
	disp *dispatch.Dispatcher,
	led *ledger.Ledger,
	beats *heartbeat.Monitor,
	hlth *health.Health,
	provider checkout.Provider,
	opts Options,
) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()
	sub := router.PathPrefix("/api").Subrouter()

	tasks.New(disp, led).
		Mount(sub, "/tasks")
	worker.New(disp, beats).
		Mount(sub, "/worker")
	wallet.New(led, provider).
		Mount(sub)

	sub.Path("/health").
		Methods(http.MethodGet).
		Name("api_health").
		HandlerFunc(restutil.WrapHandlerFunc(healthHandler(hlth)))

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type", "x-session-id", "stripe-signature"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowCredentials(),
	)(handler)

	logRequests := opts.LogRequests
	if logRequests == nil {
		logRequests = new(atomic.Bool)
		logRequests.Store(opts.EnableReqLogger)
	}
	handler = requestLoggerHandler(handler, logger, logRequests)

	return handler.ServeHTTP
}

// healthHandler serves the liveness probe: 200 while healthy, 503 with the
// same body once the store or the housekeeping loop stalls.
func healthHandler(hlth *health.Health) restutil.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		status, err := hlth.Status()
		if err != nil {
			return err
		}
		if !status.Healthy {
			w.Header().Set("Content-Type", restutil.JSONContentType)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		return restutil.WriteJSON(w, status)
	}
}
