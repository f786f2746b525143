package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/platform/requestctx"
)

var testKey = []byte("test-key")

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookie {
			return c
		}
	}
	return nil
}

func TestSessionIssuesAndReusesVisitor(t *testing.T) {
	var seen []string
	h := Session(SessionOptions{SigningKey: testKey})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestctx.Visitor(r.Context()))
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Nil(t, sessionCookie(rec), "unchanged session must not be rewritten")

	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.Equal(t, seen[0], seen[1])
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	var visitor string
	h := Session(SessionOptions{SigningKey: testKey})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visitor = requestctx.Visitor(r.Context())
	}))

	forged := EncodeSession(&SessionData{ID: "victim", CreatedAt: time.Now()}, []byte("other-key"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: forged})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "victim", visitor)
	assert.NotEmpty(t, visitor)
	assert.NotNil(t, sessionCookie(rec), "a fresh session replaces the forged one")
}

func TestCSRF(t *testing.T) {
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), Session(SessionOptions{SigningKey: testKey}), CSRF(false))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	var token string
	for _, c := range cookies {
		if c.Name == csrfCookieName {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	post := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, post(""))
	assert.Equal(t, http.StatusForbidden, post("wrong"))
	assert.Equal(t, http.StatusNoContent, post(token))
}

func TestTab(t *testing.T) {
	var got string
	h := Tab(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestctx.Tab(r.Context())
	}))

	cases := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "header", target: "/", header: "01J9ZQ3V", want: "01J9ZQ3V"},
		{name: "query", target: "/events?tab=tab_1", want: "tab_1"},
		{name: "header wins", target: "/?tab=q", header: "h", want: "h"},
		{name: "invalid", target: "/", header: "../etc", want: ""},
		{name: "missing", target: "/", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = "unset"
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(requestctx.TabHeader, tc.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"l/az.json": {Data: []byte(`{"k":"az"}`)},
		"l/en.json": {Data: []byte(`{"k":"en"}`)},
	}
	bundle, err := i18n.Load(fsys, "l", "az", []string{"az", "en"})
	require.NoError(t, err)

	var lang string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang = Lang(r)
	}), Session(SessionOptions{SigningKey: testKey}), Locale(bundle))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "en", lang)

	req = httptest.NewRequest(http.MethodGet, "/?hl=az", nil)
	req.Header.Set("Accept-Language", "en")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "az", lang)
	assert.Equal(t, "az", rec.Header().Get("Content-Language"))

	req = httptest.NewRequest(http.MethodGet, "/?hl=fr", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "az", lang)
}

func TestTrigger(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, Trigger(rec, map[string]any{"storage-updated": map[string]any{"key": "cartItems", "data": []string{"1"}}}))
	assert.JSONEq(t, `{"storage-updated":{"key":"cartItems","data":["1"]}}`, rec.Header().Get("HX-Trigger"))

	rec = httptest.NewRecorder()
	require.NoError(t, Trigger(rec, nil))
	assert.Empty(t, rec.Header().Get("HX-Trigger"))
}

func TestResponseRecorderRunsHookOnce(t *testing.T) {
	calls := 0
	rw := NewResponseRecorder(httptest.NewRecorder())
	rw.SetBeforeWrite(func(http.ResponseWriter) { calls++ })
	rw.WriteHeader(http.StatusAccepted)
	_, _ = rw.Write([]byte("x"))
	rw.Flush()
	assert.Equal(t, 1, calls)
	assert.True(t, rw.Wrote())
	assert.Equal(t, http.StatusAccepted, rw.Status())
}

func TestHTMXFlagsRequests(t *testing.T) {
	var seen []bool
	h := HTMX(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, IsHTMX(r.Context()))
	}))

	for _, value := range []string{"true", "", "false"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if value != "" {
			req.Header.Set("HX-Request", value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Contains(t, rec.Header().Values("Vary"), "HX-Request")
	}
	assert.Equal(t, []bool{true, false, false}, seen)
}
