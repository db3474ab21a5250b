package dashboard

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
)

const pprofPrefix = "/debug/pprof/"

// mountPprof exposes the runtime profiles to admin sessions.
func (a *API) mountPprof(r chi.Router) {
	r.Route(strings.TrimSuffix(pprofPrefix, "/"), func(r chi.Router) {
		r.Use(authenticate(a.Sessions))
		r.Use(requireAdmin)
		r.Get("/cmdline", hpprof.Cmdline)
		r.Get("/profile", hpprof.Profile)
		r.Get("/symbol", hpprof.Symbol)
		r.Post("/symbol", hpprof.Symbol)
		r.Get("/trace", hpprof.Trace)
		r.Get("/*", pprofIndex)
	})
}

// pprofIndex serves the index and the named profiles (heap, goroutine, ...).
func pprofIndex(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, pprofPrefix)
	if name == "" {
		hpprof.Index(w, r)
		return
	}
	hpprof.Handler(name).ServeHTTP(w, r)
}
