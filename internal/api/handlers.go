package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/titannet/titannet-server/internal/auth"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/server"
	"github.com/titannet/titannet-server/internal/stats"
	"github.com/titannet/titannet-server/internal/types"
)

var tokenLifetime = 24 * time.Hour

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// handleLogin exchanges credentials for a bearer token used by the upload
// and moderation endpoints.
func (app *TitanApp) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "invalid request body"))
		return
	}

	user, err := app.db.GetUserByUsername(req.Username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			app.log.Println("get user:", err)
		}
		app.writeError(w, &ApiError{
			StatusCode: http.StatusUnauthorized,
			Code:       CodeInvalidCredentials,
			Message:    "invalid username or password",
		})
		return
	}

	if user.Disabled || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		app.writeError(w, &ApiError{
			StatusCode: http.StatusUnauthorized,
			Code:       CodeInvalidCredentials,
			Message:    "invalid username or password",
		})
		return
	}

	token, err := auth.CreateToken(app.config.SigningKey, user.Id, tokenLifetime)
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, loginResponse{
		Token: token,
		User: types.User{
			Id:          user.Id,
			Username:    user.Username,
			TitanNumber: user.TitanNumber,
			FullName:    user.FullName,
			IsAdmin:     user.IsAdmin,
			BlogUrl:     user.BlogUrl,
		},
	})
}

// handleUpload accepts a multipart form with name, description, category,
// version and file fields. The entry is created pending and the file is
// stored under pending/ named by entry id until an admin approves it.
func (app *TitanApp) handleUpload(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		app.writeError(w, NewUnauthorizedError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, app.config.MaxUploadSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			app.writeError(w, NewFileTooLargeError(app.config.MaxUploadSize))
			return
		}
		app.writeError(w, NewBadRequestError(CodeBadRequest, "invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("name")
	category := r.FormValue("category")
	if name == "" {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "name is required"))
		return
	}
	if !database.ValidCategory(category) {
		app.writeError(w, NewBadRequestError(CodeInvalidCategory, "unknown category"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "file is required"))
		return
	}
	defer file.Close()

	if header.Size > app.config.MaxUploadSize {
		app.writeError(w, NewFileTooLargeError(app.config.MaxUploadSize))
		return
	}

	entry, err := app.db.CreateEntry(database.CreateEntryParams{
		Name:        name,
		Description: r.FormValue("description"),
		Category:    category,
		Version:     r.FormValue("version"),
		AuthorId:    userId,
		FileSize:    header.Size,
	})
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	storedPath := filepath.Join(app.pendingDir(), storedFileName(entry.Id, header.Filename))
	if err := app.storeFile(file, storedPath); err != nil {
		if delErr := app.db.DeleteEntry(entry.Id); delErr != nil {
			app.log.Println("delete entry after failed store:", delErr)
		}
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if err := app.db.UpdateEntryFilePath(entry.Id, storedPath); err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}
	entry.StoredFilePath = storedPath

	app.stats.Incr(stats.NumUploads)

	app.writeJson(w, http.StatusCreated, wireEntry(entry))
}

func (app *TitanApp) storeFile(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}

	return dst.Close()
}

// storedFileName keys the file by entry id, keeping only the original
// extension so the upload name cannot traverse directories.
func storedFileName(entryId int, originalName string) string {
	return strconv.Itoa(entryId) + filepath.Ext(filepath.Base(originalName))
}

func (app *TitanApp) handleListRepository(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if category != "" && !database.ValidCategory(category) {
		app.writeError(w, NewBadRequestError(CodeInvalidCategory, "unknown category"))
		return
	}

	entries, err := app.db.ListApprovedEntries(category)
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, wireEntries(entries))
}

func (app *TitanApp) handleListPending(w http.ResponseWriter, r *http.Request) {
	entries, err := app.db.ListPendingEntries()
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, wireEntries(entries))
}

// handleApprove marks a pending entry approved and moves its file from
// pending/ to approved/.
func (app *TitanApp) handleApprove(w http.ResponseWriter, r *http.Request) {
	adminId, _ := UserId(r.Context())

	entryId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "invalid entry id"))
		return
	}

	entry, err := app.db.GetEntryById(entryId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			app.writeError(w, NewNotFoundError())
			return
		}
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if entry.Status != database.StatusPending {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "entry is not pending"))
		return
	}

	// Move the file before flipping the status so a failed move leaves the
	// entry pending and retryable.
	approvedPath := filepath.Join(app.approvedDir(), filepath.Base(entry.StoredFilePath))
	if err := os.Rename(entry.StoredFilePath, approvedPath); err != nil {
		app.writeError(w, NewInternalServerError(fmt.Errorf("move approved file: %w", err)))
		return
	}

	if err := app.db.ApproveEntry(entryId, adminId); err != nil {
		if mvErr := os.Rename(approvedPath, entry.StoredFilePath); mvErr != nil {
			app.log.Println("restore pending file:", mvErr)
		}
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if err := app.db.UpdateEntryFilePath(entryId, approvedPath); err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	entry, err = app.db.GetEntryById(entryId)
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, wireEntry(entry))
}

// handleDownload serves an approved entry's file and bumps its download
// counter. Pending entries are not downloadable, by anyone.
func (app *TitanApp) handleDownload(w http.ResponseWriter, r *http.Request) {
	entryId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "invalid entry id"))
		return
	}

	entry, err := app.db.GetEntryById(entryId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			app.writeError(w, NewNotFoundError())
			return
		}
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if entry.Status != database.StatusApproved {
		app.writeError(w, NewForbiddenError(CodeNotApproved, "entry is awaiting moderation"))
		return
	}

	f, err := os.Open(entry.StoredFilePath)
	if err != nil {
		app.writeError(w, NewInternalServerError(fmt.Errorf("open entry file: %w", err)))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if err := app.db.IncrementEntryDownloads(entryId); err != nil {
		app.log.Println("increment downloads:", err)
	}
	app.stats.Incr(stats.NumDownloads)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(entry)))
	http.ServeContent(w, r, filepath.Base(entry.StoredFilePath), info.ModTime(), f)
}

func downloadName(entry database.RepositoryEntry) string {
	return entry.Name + filepath.Ext(entry.StoredFilePath)
}

// handleDelete removes an entry and its stored file. Only the author or an
// admin may delete.
func (app *TitanApp) handleDelete(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		app.writeError(w, NewUnauthorizedError())
		return
	}

	entryId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		app.writeError(w, NewBadRequestError(CodeBadRequest, "invalid entry id"))
		return
	}

	entry, err := app.db.GetEntryById(entryId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			app.writeError(w, NewNotFoundError())
			return
		}
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if entry.AuthorId != userId {
		user, err := app.db.GetUserById(userId)
		if err != nil || !user.IsAdmin {
			app.writeError(w, NewForbiddenError(CodeNotAuthorized, "not the entry author"))
			return
		}
	}

	if err := app.db.DeleteEntry(entryId); err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	if entry.StoredFilePath != "" {
		if err := os.Remove(entry.StoredFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			app.log.Println("remove entry file:", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type repositoryStatsResponse struct {
	TotalApproved  int            `json:"total_approved"`
	TotalPending   int            `json:"total_pending"`
	TotalDownloads int            `json:"total_downloads"`
	Categories     map[string]int `json:"categories"`
}

func (app *TitanApp) handleStats(w http.ResponseWriter, r *http.Request) {
	repoStats, err := app.db.GetRepositoryStats()
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, repositoryStatsResponse{
		TotalApproved:  repoStats.TotalApproved,
		TotalPending:   repoStats.TotalPending,
		TotalDownloads: repoStats.TotalDownloads,
		Categories:     repoStats.Categories,
	})
}

// handleSearch matches approved entries by name or description substring,
// optionally narrowed to a category.
func (app *TitanApp) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	if category != "" && !database.ValidCategory(category) {
		app.writeError(w, NewBadRequestError(CodeInvalidCategory, "unknown category"))
		return
	}

	entries, err := app.db.SearchEntries(query, category)
	if err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, wireEntries(entries))
}

func (app *TitanApp) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := app.db.Ping(); err != nil {
		app.writeError(w, NewInternalServerError(err))
		return
	}

	app.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveWs upgrades the connection and hands it to the chat server. The
// socket starts unauthenticated; the client logs in over the socket itself.
func (app *TitanApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: app.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Println("upgrade:", err)
		return
	}

	client := server.NewClient(conn, app.chatServer, app.log)
	go client.Serve()
}

func (app *TitanApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range app.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

func wireEntry(e database.RepositoryEntry) types.RepositoryEntry {
	entry := types.RepositoryEntry{
		Id:             e.Id,
		Name:           e.Name,
		Description:    e.Description,
		Category:       e.Category,
		Version:        e.Version,
		AuthorId:       e.AuthorId,
		AuthorUsername: e.AuthorUsername,
		FileSize:       e.FileSize,
		Status:         e.Status,
		DownloadCount:  e.DownloadCount,
		UploadedAt:     e.UploadedAt,
	}
	if e.ApprovedAt.Valid {
		entry.ApprovedAt = e.ApprovedAt.Time
	}

	return entry
}

func wireEntries(entries []database.RepositoryEntry) []types.RepositoryEntry {
	wire := make([]types.RepositoryEntry, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, wireEntry(e))
	}

	return wire
}
