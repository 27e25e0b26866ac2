package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for browser-based tills.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST and OPTIONS.
	AllowMethods []string
	// AllowHeaders is echoed from the preflight request when empty.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials disables the "*" origin: the request origin is echoed
	// instead.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header.
	MaxAge int
}

// CORS answers preflight requests and decorates cross-origin responses.
// Origins match case-insensitively and are echoed as configured.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = o
	}
	wildcard := allowAll && !cfg.AllowCredentials

	methods := strings.Join(cfg.AllowMethods, ", ")
	if methods == "" {
		methods = "GET, POST, OPTIONS"
	}
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")
	var maxAge string
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	originFor := func(origin string) string {
		switch {
		case wildcard:
			return "*"
		case allowAll:
			return origin
		default:
			return allowed[strings.ToLower(origin)]
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin := originFor(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin != "" {
					h.Set("Access-Control-Allow-Origin", allowOrigin)
					h.Set("Access-Control-Allow-Methods", methods)
					if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						h.Set("Access-Control-Allow-Headers", rh)
					}
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
