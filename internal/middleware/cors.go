package middleware

import "net/http"

// CORS answers cross-origin requests and adds the headers that let the UI
// and the embedded editors be framed by any origin. An allowed origin of "*"
// admits every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allow[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			_, listed := allow[origin]
			switch {
			case origin != "" && (allowAll || listed):
				// credentials require an echoed origin rather than "*"
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			}
			if origin != "" && (allowAll || listed) || allowAll {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "*")
			}

			h.Set("X-Frame-Options", "ALLOWALL")
			h.Set("Content-Security-Policy", "frame-ancestors *; frame-src *;")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer-when-downgrade")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
