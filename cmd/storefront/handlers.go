package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/events"
	"finitefield.org/storefront/internal/handlers"
	"finitefield.org/storefront/internal/interactions"
	"finitefield.org/storefront/internal/keyset"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/nav"
	"finitefield.org/storefront/internal/platform/requestctx"
	"finitefield.org/storefront/internal/seo"
)

// heartbeat keeps event streams open through proxies and marks the tab as active.
var heartbeat = 25 * time.Second

// toggleKinds maps the toggle route segment to its bucket.
var toggleKinds = map[string]keyset.Bucket{
	"favorite":   keyset.Favorites,
	"cart":       keyset.Cart,
	"comparison": keyset.Comparisons,
}

// homeHandler opens a new tab and renders the landing page.
func (a *app) homeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := mw.Lang(r)
	tab := interactions.NewTabID()
	state := a.registry.Open(ctx, requestctx.Visitor(ctx), tab)

	page, err := a.catalog.Home(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("load catalog", zap.Error(err))
	}
	state.SetProducts(page.Products)
	if category := r.URL.Query().Get("category"); category != "" {
		state.ChangeCategory(category)
	}
	snap := state.Snapshot()

	layout := handlers.Layout{
		Lang:      lang,
		Path:      r.URL.Path,
		Nav:       nav.Build(r.URL.Path),
		TabID:     tab,
		CSRFToken: mw.CSRFToken(r),
		SEO:       a.homeMeta(r, lang, snap),
	}
	w.Header().Set("Cache-Control", "no-store")
	a.views.renderPage(w, r, handlers.BuildHomeData(layout, page, snap))
}

func (a *app) homeMeta(r *http.Request, lang string, snap interactions.Snapshot) seo.Meta {
	base := baseURL(r)
	meta := seo.Meta{
		Title:       a.bundle.T(lang, "site.title"),
		Description: a.bundle.T(lang, "site.description"),
		Canonical:   base + "/",
	}
	meta.OG = seo.OpenGraph{
		Title:       meta.Title,
		Description: meta.Description,
		Type:        "website",
		URL:         meta.Canonical,
	}
	meta.Twitter.Card = "summary_large_image"
	for _, l := range a.bundle.Supported() {
		meta.Alternates = append(meta.Alternates, seo.Alternate{Href: base + "/?hl=" + url.QueryEscape(l), Hreflang: l})
	}
	meta.JSONLD = []string{
		seo.JSON(seo.WebSite(meta.Title, base+"/", "")),
		seo.JSON(seo.ItemList(snap.Products, base)),
	}
	return meta
}

// withTabState resolves the tab's interaction state for fragment requests,
// reopening tabs that were swept and loading their catalog.
func (a *app) withTabState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tab := requestctx.Tab(ctx)
		if tab == "" {
			http.Error(w, "missing tab id", http.StatusBadRequest)
			return
		}
		state := a.registry.Open(ctx, requestctx.Visitor(ctx), tab)
		if state.IsLoading() {
			page, err := a.catalog.Home(ctx)
			if err != nil {
				requestctx.Logger(ctx).Error("load catalog", zap.Error(err))
			}
			state.SetProducts(page.Products)
		}
		next.ServeHTTP(w, r.WithContext(interactions.WithState(ctx, state)))
	})
}

// productsHandler renders the products section, switching category when asked.
func (a *app) productsHandler(w http.ResponseWriter, r *http.Request) {
	state := interactions.MustFrom(r.Context())
	if r.URL.Query().Has("category") {
		state.ChangeCategory(r.URL.Query().Get("category"))
	}
	data := handlers.BuildProductsData(mw.Lang(r), state.ID(), state.Snapshot())
	a.views.renderTemplate(w, r, "products_section", data)
}

// countersHandler renders the header badges.
func (a *app) countersHandler(w http.ResponseWriter, r *http.Request) {
	state := interactions.MustFrom(r.Context())
	a.views.renderTemplate(w, r, "counters", countersView{Lang: mw.Lang(r), Counts: state.Counts()})
}

type toggleView struct {
	Card     handlers.CardData
	Counters countersView
}

// toggleHandler flips a product in one of the visitor's sets. Unknown product ids
// are still toggled; there is just no card to re-render.
func (a *app) toggleHandler(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	bucket, ok := toggleKinds[kind]
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	state := interactions.MustFrom(ctx)
	transition := state.Toggle(ctx, bucket, id)
	requestctx.Logger(ctx).Debug("product toggled",
		zap.String("bucket", string(bucket)),
		zap.String("product_id", id),
		zap.String("transition", string(transition)),
	)

	if err := mw.Trigger(w, map[string]any{
		events.StorageUpdated: map[string]any{"key": string(bucket), "data": state.IDs(bucket)},
	}); err != nil {
		requestctx.Logger(ctx).Warn("encode HX-Trigger", zap.Error(err))
	}

	p, found := state.Product(id)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	lang := mw.Lang(r)
	a.views.renderTemplate(w, r, "toggle_response", toggleView{
		Card:     handlers.CardData{Lang: lang, Product: p, Animate: kind, Transition: transition},
		Counters: countersView{Lang: lang, Counts: state.Counts(), OOB: true},
	})
}

// eventsHandler streams the buckets other tabs changed as server-sent events.
func (a *app) eventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := interactions.MustFrom(ctx)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// the server write timeout would otherwise cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	updates := state.Watch(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.streams.Done():
			return
		case key, ok := <-updates:
			if !ok {
				return
			}
			payload, _ := json.Marshal(map[string]string{"key": key})
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.Storage, payload)
			flusher.Flush()
		case <-ticker.C:
			state.Touch()
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// statusHandler reports dependency health as JSON.
func (a *app) statusHandler(w http.ResponseWriter, r *http.Request) {
	summary := a.status.Summary(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
