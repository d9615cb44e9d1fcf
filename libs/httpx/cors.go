package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/config"
)

type CORSPolicy struct {
	// AllowedOrigins may contain "*". Matching is case-insensitive.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORSPolicyFromEnv reads the CORS_* variables. Without
// CORS_ALLOWED_ORIGINS the policy is disabled.
func CORSPolicyFromEnv() CORSPolicy {
	return CORSPolicy{
		AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
		AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
		AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,"+RequestIDHeader),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
	}
}

// corsRules is a CORSPolicy compiled once at startup.
type corsRules struct {
	origins     map[string]struct{}
	anyOrigin   bool
	credentials bool
	// fixed holds the headers that do not depend on the request origin.
	fixed map[string]string
}

func compileCORS(p CORSPolicy) corsRules {
	rules := corsRules{
		origins:     map[string]struct{}{},
		credentials: p.AllowCredentials,
		fixed:       map[string]string{},
	}
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			rules.anyOrigin = true
		default:
			rules.origins[o] = struct{}{}
		}
	}
	if v := joinNonEmpty(p.AllowedMethods); v != "" {
		rules.fixed["Access-Control-Allow-Methods"] = v
	}
	if v := joinNonEmpty(p.AllowedHeaders); v != "" {
		rules.fixed["Access-Control-Allow-Headers"] = v
	}
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.fixed["Access-Control-Max-Age"] = strconv.Itoa(secs)
	}
	if p.AllowCredentials {
		rules.fixed["Access-Control-Allow-Credentials"] = "true"
	}
	return rules
}

func (c corsRules) enabled() bool { return c.anyOrigin || len(c.origins) > 0 }

// allowOrigin returns the Access-Control-Allow-Origin value for origin. A
// wildcard policy echoes the origin when credentials are allowed, since
// browsers reject "*" together with credentials.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !c.anyOrigin {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

// WithCORS answers preflights from allowed origins with 204 and decorates
// their other responses. Requests from other origins pass through untouched.
func WithCORS(policy CORSPolicy) Middleware {
	rules := compileCORS(policy)
	if !rules.enabled() {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			for k, v := range rules.fixed {
				h.Set(k, v)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinNonEmpty(values []string) string {
	kept := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, ", ")
}
