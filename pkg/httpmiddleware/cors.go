package httpmiddleware

import (
	"net/http"
	"strings"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// Origins that may call the API. Empty or "*" allows any origin.
	Origins []string
	// AllowCredentials echoes the concrete origin instead of "*".
	AllowCredentials bool
	// Headers the browser may send. Defaults cover the API key header.
	Headers []string
}

var (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = []string{"Content-Type", "api_key", RequestIDHeader}
)

// CORS answers preflight requests and decorates cross-origin responses.
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := len(cfg.Origins) == 0
	allowed := make(map[string]bool, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}
	headers := cfg.Headers
	if len(headers) == 0 {
		headers = corsHeaders
	}
	allowHeaders := strings.Join(headers, ", ")

	allowOrigin := func(origin string) string {
		switch {
		case anyOrigin && !cfg.AllowCredentials:
			return "*"
		case anyOrigin, allowed[strings.ToLower(origin)]:
			return origin
		default:
			return ""
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			ao := allowOrigin(origin)
			if ao != "" {
				h.Set("Access-Control-Allow-Origin", ao)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if ao != "" {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					h.Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
