package api

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/floorcast/internal/api/middleware"
	"github.com/kiranshivaraju/floorcast/internal/api/response"
	"github.com/kiranshivaraju/floorcast/internal/outputs"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler      http.HandlerFunc
	ListFloorsHandler  http.HandlerFunc
	ListSamplesHandler http.HandlerFunc
	UploadHandler      http.HandlerFunc
	CreateJobHandler   http.HandlerFunc
	GetJobHandler      http.HandlerFunc

	// OutputDir is served read-only under /outputs/. Empty disables the mount.
	OutputDir string
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Get("/api/v1/floors", orNotImplemented(deps.ListFloorsHandler))
	r.Get("/api/v1/samples", orNotImplemented(deps.ListSamplesHandler))
	r.Post("/api/v1/uploads", orNotImplemented(deps.UploadHandler))

	r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobHandler))
	r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))

	if deps.OutputDir != "" {
		files := http.StripPrefix(outputs.URLPrefix, http.FileServer(noListing{http.Dir(deps.OutputDir)}))
		r.Handle(outputs.URLPrefix+"*", files)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}

// noListing hides directory indexes under /outputs/.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
