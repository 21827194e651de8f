package mid

import (
	"context"
	"net/http"
	"strings"

	"github.com/arthachain/ledger/foundation/web"
)

// The node API only reads with GET and submits with POST.
const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Accept, Content-Type, Content-Length"
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing.
// A "*" entry allows any origin; otherwise the request origin is echoed
// only when it is listed, and other origins get no CORS headers at all.
func Cors(origins ...string) web.Middleware {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			switch origin := r.Header.Get("Origin"); {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")

			case origin != "":
				w.Header().Add("Vary", "Origin")
				if _, exists := allowed[origin]; !exists {
					return handler(ctx, w, r)
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)

			default:
				return handler(ctx, w, r)
			}

			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
