package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CSRFTokenTTL is how long an issued CSRF token stays valid
const CSRFTokenTTL = 24 * time.Hour

// SecurityHeaders adds security headers to all responses
func SecurityHeaders(cspEnabled, hstsEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The API serves JSON and event streams only
			if cspEnabled {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
			}

			if hstsEnabled {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}

			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFProtection guards cookie-authenticated mutations. Tokens stay valid
// until they expire so single-page clients can reuse them.
type CSRFProtection struct {
	secret string
	tokens sync.Map // map[string]time.Time for token expiration
	now    func() time.Time

	pruneMu   sync.Mutex
	nextPrune time.Time
}

// csrfPruneInterval bounds how often token issuance sweeps expired entries
const csrfPruneInterval = time.Hour

func NewCSRFProtection(secret string) *CSRFProtection {
	return &CSRFProtection{
		secret: secret,
		now:    time.Now,
	}
}

func (c *CSRFProtection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip CSRF for GET, HEAD, OPTIONS (safe methods)
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Bearer clients do not send ambient cookies
		if bearerToken(r) != "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-CSRF-Token")
		if token == "" {
			token = r.FormValue("csrf_token")
		}

		if !c.ValidateToken(token) {
			writeError(w, http.StatusForbidden, "csrf_invalid", "Invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CSRFProtection) GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(b)
	token := nonce + "." + c.sign(nonce)

	now := c.now()
	c.tokens.Store(token, now.Add(CSRFTokenTTL))
	c.maybePrune(now)

	return token
}

func (c *CSRFProtection) ValidateToken(token string) bool {
	nonce, sig, found := strings.Cut(token, ".")
	if !found || !SecureCompare(sig, c.sign(nonce)) {
		return false
	}

	expiry, ok := c.tokens.Load(token)
	if !ok {
		return false
	}

	expiryTime, ok := expiry.(time.Time)
	if !ok || c.now().After(expiryTime) {
		c.tokens.Delete(token)
		return false
	}

	return true
}

// sign binds a token nonce to the server secret
func (c *CSRFProtection) sign(nonce string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// maybePrune drops expired tokens at most once per csrfPruneInterval
func (c *CSRFProtection) maybePrune(now time.Time) {
	c.pruneMu.Lock()
	if now.Before(c.nextPrune) {
		c.pruneMu.Unlock()
		return
	}
	c.nextPrune = now.Add(csrfPruneInterval)
	c.pruneMu.Unlock()

	c.tokens.Range(func(key, value interface{}) bool {
		if expiry, ok := value.(time.Time); ok && now.After(expiry) {
			c.tokens.Delete(key)
		}
		return true
	})
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements rate limiting per IP address
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
	nextScan time.Time
}

// NewRateLimiter allows requestsPerWindow requests per window for each
// client IP. Idle clients are forgotten after a few windows.
func NewRateLimiter(requestsPerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:    requestsPerWindow,
		idle:     3 * window,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(getIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.After(rl.nextScan) {
		rl.evictIdle(now)
		rl.nextScan = now.Add(rl.idle)
	}

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	return v.limiter
}

// evictIdle drops clients unseen for longer than idle. Callers hold mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, ip)
		}
	}
}

// getIP extracts the real IP address from the request
func getIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Take the first IP
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// SecureCompare performs constant-time comparison of two strings
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
