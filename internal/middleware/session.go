package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"finitefield.org/storefront/internal/platform/requestctx"
)

// DefaultSessionCookie is used when SessionOptions.CookieName is empty.
const DefaultSessionCookie = "STOREFRONT_SESSION"

// SessionData is the signed cookie payload. ID identifies the visitor and
// namespaces their persisted key sets.
type SessionData struct {
	ID        string    `json:"id"`
	Locale    string    `json:"locale,omitempty"`
	CSRFToken string    `json:"csrf,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// internal dirty flag; not serialized
	dirty bool
}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	SigningKey []byte
	CookieName string
	Secure     bool
	MaxAge     time.Duration
}

func (o SessionOptions) cookieName() string {
	if o.CookieName == "" {
		return DefaultSessionCookie
	}
	return o.CookieName
}

func (o SessionOptions) maxAge() time.Duration {
	if o.MaxAge <= 0 {
		return 365 * 24 * time.Hour
	}
	return o.MaxAge
}

// Session loads or initializes a session, stores it in request context and
// exposes its ID as the visitor id.
func Session(opts SessionOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, fromCookie := readSessionCookie(r, opts)
			if sd.ID == "" {
				sd.ID = randID()
				sd.CreatedAt = time.Now().UTC()
				sd.UpdatedAt = sd.CreatedAt
				sd.CSRFToken = newCSRFToken()
				sd.dirty = true
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sd)
			ctx = requestctx.WithVisitor(ctx, sd.ID)

			rw := NewResponseRecorder(w)
			// the cookie must be set before the first byte is written
			rw.SetBeforeWrite(func(w http.ResponseWriter) {
				if sd.dirty || !fromCookie {
					writeSessionCookie(w, sd, opts)
				}
			})
			next.ServeHTTP(rw, r.WithContext(ctx))
			if !rw.Wrote() && (sd.dirty || !fromCookie) {
				writeSessionCookie(w, sd, opts)
			}
		})
	}
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if v := r.Context().Value(ctxKeySession); v != nil {
		if sd, ok := v.(*SessionData); ok {
			return sd
		}
	}
	return &SessionData{}
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

// readSessionCookie parses and verifies the session cookie
func readSessionCookie(r *http.Request, opts SessionOptions) (*SessionData, bool) {
	c, err := r.Cookie(opts.cookieName())
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	parts := strings.Split(c.Value, ".")
	if len(parts) != 2 {
		return &SessionData{}, false
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return &SessionData{}, false
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return &SessionData{}, false
	}
	mac := hmac.New(sha256.New, opts.SigningKey)
	mac.Write(payloadB)
	if !hmac.Equal(sigB, mac.Sum(nil)) {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := json.Unmarshal(payloadB, &sd); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

// EncodeSession signs sd the way the Session middleware does.
func EncodeSession(sd *SessionData, key []byte) string {
	b, _ := json.Marshal(sd)
	payload := base64.RawURLEncoding.EncodeToString(b)
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func writeSessionCookie(w http.ResponseWriter, sd *SessionData, opts SessionOptions) {
	// httpOnly to prevent JS access
	http.SetCookie(w, &http.Cookie{
		Name:     opts.cookieName(),
		Value:    EncodeSession(sd, opts.SigningKey),
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(opts.maxAge()),
	})
}

// NewSigningKey returns a random key for development setups without a configured one.
func NewSigningKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return []byte("insecure-dev-key-please-set-STOREFRONT_SESSION_SIGNING_KEY")
	}
	return key
}

// helpers
func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
