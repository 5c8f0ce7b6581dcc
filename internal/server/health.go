package server

import (
	"fmt"
	"net/http"

	"github.com/pronunciapa/pronunciapa/internal/kernel"
)

// registerHealth adds liveness and readiness probes.
//
//   - /healthz always returns 200: a process that serves HTTP is alive.
//   - /readyz returns 200 only when the kernel has language packs loaded.
func registerHealth(mux *http.ServeMux, k *kernel.Kernel) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		langs := k.Languages()
		if len(langs) == 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "fail",
				"packs":  "no language packs loaded",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"packs":  fmt.Sprintf("%d loaded", len(langs)),
		})
	})
}
