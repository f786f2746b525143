package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/platform/observability"
)

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP. Ensure only trusted proxies
	// can set these headers in production environments.
	r.Use(middleware.RealIP)
	r.Use(observability.InjectLoggerMiddleware(a.logger))
	r.Use(observability.TraceMiddleware(a.cfg.Log.TraceProject))
	r.Use(observability.RecoveryMiddleware(a.logger))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", a.statusHandler)

	// Static assets under /assets/ and the card image placeholder at the root
	assets := mw.AssetsWithCache(a.assets)
	r.Handle("/assets/*", assets)
	r.Handle("/product-placeholder.svg", assets)

	r.Group(func(r chi.Router) {
		r.Use(mw.HTMX)
		r.Use(mw.Tab)
		r.Use(mw.Session(mw.SessionOptions{SigningKey: a.signingKey, Secure: a.cfg.Session.Secure}))
		r.Use(mw.Locale(a.bundle))
		r.Use(mw.CSRF(a.cfg.Session.Secure))
		r.Use(mw.VaryLocale)
		r.Use(observability.RequestLoggerMiddleware())

		// the event stream outlives the request timeout
		r.With(a.withTabState).Get("/events", a.eventsHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(middleware.Timeout(requestTimeout(a.cfg.Server.RequestTimeout)))

			r.Get("/", a.homeHandler)
			r.Route("/products", func(r chi.Router) {
				r.Use(a.withTabState)
				r.Get("/", a.productsHandler)
				r.Post("/{id}/{kind}", a.toggleHandler)
			})
			r.With(a.withTabState).Get("/counters", a.countersHandler)
		})
	})
	return r
}

func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
