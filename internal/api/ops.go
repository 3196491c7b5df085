package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// NewOpsHandler serves /healthz (process is up) and /readyz (all checks pass).
func NewOpsHandler(checks map[string]Check) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	})

	return mux
}
