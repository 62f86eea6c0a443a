package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/handlers"
	"github.com/titannet/titannet-server/internal/config"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/server"
	"github.com/titannet/titannet-server/internal/stats"
)

// TitanApp owns the HTTP surface: the repository API, the health endpoint
// and the WebSocket upgrade path. Uploaded files live under the configured
// upload directory, split into pending/ and approved/ and named by entry id.
type TitanApp struct {
	log           *log.Logger
	config        *config.Config
	db            database.TitanRepository
	chatServer    *server.ChatServer
	stats         stats.StatsProvider
	uploadLimiter *rateLimiter
	srv           *http.Server
}

func NewTitanApp(cfg *config.Config, db database.TitanRepository, cs *server.ChatServer,
	statsProvider stats.StatsProvider, mux *http.ServeMux, logger *log.Logger) (*TitanApp, error) {

	app := &TitanApp{
		log:           logger,
		config:        cfg,
		db:            db,
		chatServer:    cs,
		stats:         statsProvider,
		uploadLimiter: newRateLimiter(),
	}

	for _, dir := range []string{app.pendingDir(), app.approvedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	statsProvider.RegisterMetric(stats.NumUploads)
	statsProvider.RegisterMetric(stats.NumDownloads)

	mux.HandleFunc("POST /api/login", app.handleLogin)
	mux.HandleFunc("POST /api/upload", app.authMiddleware(app.rateLimitMiddleware(app.handleUpload)))
	mux.HandleFunc("GET /api/repository", app.handleListRepository)
	mux.HandleFunc("GET /api/repository/{category}", app.handleListRepository)
	mux.HandleFunc("GET /api/pending", app.adminMiddleware(app.handleListPending))
	mux.HandleFunc("POST /api/approve/{id}", app.adminMiddleware(app.handleApprove))
	mux.HandleFunc("GET /api/download/{id}", app.handleDownload)
	mux.HandleFunc("DELETE /api/delete/{id}", app.authMiddleware(app.handleDelete))
	mux.HandleFunc("GET /api/stats", app.handleStats)
	mux.HandleFunc("GET /api/search", app.handleSearch)
	mux.HandleFunc("GET /healthz", app.handleHealth)
	mux.HandleFunc("GET /ws", app.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(app.errorHandler(mux))

	app.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return app, nil
}

func (app *TitanApp) Start() error {
	app.log.Printf("starting server on %s\n", app.srv.Addr)
	return app.srv.ListenAndServe()
}

func (app *TitanApp) Shutdown(ctx context.Context) error {
	return app.srv.Shutdown(ctx)
}

func (app *TitanApp) pendingDir() string {
	return filepath.Join(app.config.UploadDir, "pending")
}

func (app *TitanApp) approvedDir() string {
	return filepath.Join(app.config.UploadDir, "approved")
}

func (app *TitanApp) writeJson(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		app.log.Println("write response:", err)
	}
}

func (app *TitanApp) writeError(w http.ResponseWriter, apiErr *ApiError) {
	if apiErr.Err != nil {
		app.log.Println(apiErr.Error())
	}
	app.writeJson(w, apiErr.StatusCode, apiErr)
}
