package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/interactions"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/platform/requestctx"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

//go:embed public
var publicFiles embed.FS

func embeddedTemplates() fs.FS {
	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func embeddedAssets() fs.FS {
	sub, err := fs.Sub(publicFiles, "public")
	if err != nil {
		panic(err)
	}
	return sub
}

// views parses the *.tmpl files of fsys. In dev mode templates are reparsed on each render.
type views struct {
	fsys   fs.FS
	dev    bool
	bundle *i18n.Bundle

	mu    sync.RWMutex
	cache *template.Template
}

func newViews(fsys fs.FS, dev bool, bundle *i18n.Bundle) (*views, error) {
	v := &views{fsys: fsys, dev: dev, bundle: bundle}
	t, err := v.parse()
	if err != nil {
		return nil, err
	}
	v.cache = t
	return v, nil
}

func (v *views) parse() (*template.Template, error) {
	files, err := fs.Glob(v.fsys, "*.tmpl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found")
	}
	return template.New("_root").Funcs(v.funcs()).ParseFS(v.fsys, files...)
}

func (v *views) templates() (*template.Template, error) {
	if v.dev {
		return v.parse()
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cache, nil
}

// countersView feeds the header badge template.
type countersView struct {
	Lang   string
	Counts interactions.Counts
	OOB    bool
}

func (v *views) funcs() template.FuncMap {
	return template.FuncMap{
		"now": time.Now,
		"t": func(lang, key string) string {
			return v.bundle.T(lang, key)
		},
		"price":    format.Price,
		"discount": format.Discount,
		"months": func(lang string, month float64) string {
			return format.Months(month, v.bundle.T(lang, "card.months"))
		},
		"pathEscape": url.PathEscape,
		"seq": func(n int) []int {
			return make([]int, n)
		},
		"hxHeaders": func(tab, csrf string) string {
			b, _ := json.Marshal(map[string]string{
				requestctx.TabHeader: tab,
				mw.CSRFHeader:        csrf,
			})
			return string(b)
		},
		"jsonld": func(s string) template.JS {
			// json.Marshal escapes <, > and &, so the payload cannot close the script tag
			return template.JS(s)
		},
		"counters": func(lang string, counts interactions.Counts, oob bool) countersView {
			return countersView{Lang: lang, Counts: counts, OOB: oob}
		},
	}
}

// renderPage executes the base layout.
func (v *views) renderPage(w http.ResponseWriter, r *http.Request, data any) {
	v.renderTemplate(w, r, "base", data)
}

// renderTemplate executes a named template into a buffer so failures still produce a clean 500.
func (v *views) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	t, err := v.templates()
	if err != nil {
		requestctx.Logger(r.Context()).Error("template parse error", zap.Error(err))
		http.Error(w, "template parse error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		requestctx.Logger(r.Context()).Error("template exec error", zap.String("template", name), zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
