// Package catalog fetches the storefront's banners, info cards and product groups
// from the catalog API, falling back to bundled content when offline.
package catalog

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finitefield.org/storefront/internal/product"
)

// Endpoint names relative to the catalog base URL.
const (
	EndpointBanners  = "big-sliders"
	EndpointFeatures = "features"
	EndpointProducts = "special-offer"
)

// Sources reported on a Page.
const (
	SourceRemote   = "remote"
	SourceFallback = "fallback"
)

const (
	defaultTimeout  = 8 * time.Second
	defaultCacheTTL = time.Minute
	maxBodyBytes    = 4 << 20
)

// Banner is one slide of the home carousel.
type Banner struct {
	ID          string
	Image       string
	Title       string
	Description string
	ButtonText  string
	URL         string
}

// Feature is a promotional info card. Description is sanitized HTML.
type Feature struct {
	ID          string
	Icon        string
	Title       string
	Description template.HTML
}

// Page is everything the home page needs. Callers must treat it as read-only.
type Page struct {
	Banners  []Banner
	Features []Feature
	Products []product.Raw
	Source   string
	Fetched  time.Time
}

// Client reads the catalog API.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	ttl      time.Duration
	offline  bool
	renderer *Renderer
	randomID func() string
	clock    func() time.Time

	mu      sync.Mutex
	cached  Page
	expires time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheTTL sets how long a fetched page is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithOffline serves the bundled catalog without touching the network.
func WithOffline(offline bool) Option {
	return func(c *Client) { c.offline = offline }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient constructs a Client for baseURL. An empty baseURL implies offline.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   zap.NewNop(),
		ttl:      defaultCacheTTL,
		renderer: NewRenderer(),
		randomID: randomProductID,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.offline = true
	}
	return c
}

// Home returns the home page content. Failing endpoints contribute empty lists;
// Home itself only fails when the bundled fallback is unreadable.
func (c *Client) Home(ctx context.Context) (Page, error) {
	if page, ok := c.fromCache(); ok {
		return page, nil
	}

	var (
		page Page
		err  error
	)
	if c.offline {
		page, err = c.fallback()
	} else {
		page = c.remote(ctx)
	}
	if err != nil {
		return Page{}, err
	}
	c.store(page)
	return page, nil
}

// Invalidate drops the cached page.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cached = Page{}
	c.expires = time.Time{}
	c.mu.Unlock()
}

func (c *Client) remote(ctx context.Context) Page {
	var banners, features, groups gjson.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		banners = c.safeFetch(gctx, EndpointBanners)
		return nil
	})
	g.Go(func() error {
		features = c.safeFetch(gctx, EndpointFeatures)
		return nil
	})
	g.Go(func() error {
		groups = c.safeFetch(gctx, EndpointProducts)
		return nil
	})
	_ = g.Wait()

	page := c.assemble(banners, features, groups)
	page.Source = SourceRemote
	c.logger.Info("catalog: fetched",
		zap.Int("banners", len(page.Banners)),
		zap.Int("features", len(page.Features)),
		zap.Int("products", len(page.Products)),
	)
	return page
}

func (c *Client) assemble(banners, features, groups gjson.Result) Page {
	return Page{
		Banners:  parseBanners(banners),
		Features: c.parseFeatures(features),
		Products: flattenGroups(groups, c.randomID),
		Fetched:  c.clock(),
	}
}

// safeFetch returns the endpoint's JSON body, or an empty array when the request
// fails, the status is not 2xx or the body is not JSON.
func (c *Client) safeFetch(ctx context.Context, endpoint string) gjson.Result {
	empty := gjson.Parse("[]")
	target, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		c.logger.Error("catalog: build url", zap.String("endpoint", endpoint), zap.Error(err))
		return empty
	}
	logger := c.logger.With(zap.String("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logger.Error("catalog: build request", zap.Error(err))
		return empty
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("catalog: request failed", zap.Error(err))
		return empty
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("catalog: unexpected status", zap.Int("status", resp.StatusCode))
		return empty
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logger.Error("catalog: read body", zap.Error(err))
		return empty
	}
	if !gjson.ValidBytes(body) {
		logger.Error("catalog: malformed json", zap.Int("bytes", len(body)))
		return empty
	}
	return gjson.ParseBytes(body)
}

func (c *Client) fromCache() (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 || c.expires.IsZero() || !c.clock().Before(c.expires) {
		return Page{}, false
	}
	return c.cached, true
}

func (c *Client) store(page Page) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.cached = page
	c.expires = c.clock().Add(c.ttl)
	c.mu.Unlock()
}

func (c *Client) String() string {
	if c.offline {
		return "catalog(offline)"
	}
	return fmt.Sprintf("catalog(%s)", c.baseURL)
}
