package http

import (
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// LivezHandler always answers 200 while the process runs.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, folioclient.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler reports 503 until the database answers.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &folioclient.HealthChecks{Database: "ok"}
		status, code := "ok", http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			// Driver errors can carry hosts and credentials; keep them in the log.
			slogx.FromContext(r.Context()).Error("readiness check failed", slog.Any("error", err))
			checks.Database = "error"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, folioclient.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// activeContent lists types a browser could execute when rendered inline
// from our origin. Uploads of these types are only ever downloaded.
var activeContent = []string{
	"text/html",
	"image/svg+xml",
	"application/xhtml+xml",
	"text/xml",
	"application/xml",
	"text/javascript",
	"application/javascript",
	"application/pdf",
}

// uploadsHandler serves files from dir without directory listings. The
// Content-Type comes from the file's bytes, not its extension.
func uploadsHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.StripPrefix("/uploads", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if m, err := mimetype.DetectFile(name); err == nil {
			w.Header().Set("Content-Type", m.String())
			if isActiveContent(m) {
				w.Header().Set("Content-Disposition", "attachment")
			}
		}
		fs.ServeHTTP(w, r)
	}))
}

func isActiveContent(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		for _, t := range activeContent {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}
