package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig controls the headers sent to browser clients such as a local
// dashboard served from another port.
type CORSConfig struct {
	AllowOrigin string
	MaxAge      int
}

// DefaultCORSConfig allows any origin. procmgr listens on a local address.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowOrigin: "*", MaxAge: 86400}
}

// The API only exposes reads, commands and SSE streams.
var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "Accept", "Last-Event-ID", "Cache-Control"}
)

type corsHeaderSet [][2]string

func (c CORSConfig) headers() corsHeaderSet {
	origin := c.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	return corsHeaderSet{
		{"Access-Control-Allow-Origin", origin},
		{"Access-Control-Allow-Methods", strings.Join(corsMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(corsHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
}

// NewCORSMiddleware sets CORS headers on every operation response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	set := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		for _, h := range set {
			ctx.SetHeader(h[0], h[1])
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on mux. Huma only sees
// requests that match a registered operation, so OPTIONS is routed here.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	set := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for _, h := range set {
			w.Header().Set(h[0], h[1])
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
