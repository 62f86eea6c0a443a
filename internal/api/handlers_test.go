package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/titannet/titannet-server/internal/auth"
	"github.com/titannet/titannet-server/internal/config"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/stats"
	"github.com/titannet/titannet-server/internal/testutil"
)

var testSigningKey = []byte("test-signing-key")

// newTestApp builds a TitanApp around a mock repository with uploads rooted
// in a temp directory.
func newTestApp(t *testing.T, db database.TitanRepository) *TitanApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()

	app := &TitanApp{
		log: testutil.TestLogger(t),
		config: &config.Config{
			ServerAddr:    "localhost:0",
			UploadDir:     t.TempDir(),
			MaxUploadSize: 1 << 20,
			SigningKey:    testSigningKey,
		},
		db:            db,
		stats:         su,
		uploadLimiter: newRateLimiter(),
	}

	for _, dir := range []string{app.pendingDir(), app.approvedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("create upload dir: %v", err)
		}
	}

	return app
}

// asUser injects an authenticated user id into the request context the way
// authMiddleware does.
func asUser(r *http.Request, userId int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIdKey, userId))
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("write field %q: %v", key, err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(fileContent); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return buf, mw.FormDataContentType()
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()

	var apiErr ApiError
	if err := json.NewDecoder(rr.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func TestHandleLogin(t *testing.T) {
	hash, err := auth.HashPassword("password")
	assert.NoError(t, err)

	user := database.User{
		Id:           1,
		Username:     "alice",
		PasswordHash: hash,
		TitanNumber:  12345,
	}

	t.Run("successful login returns a usable token", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetUserByUsername", "alice").Return(user, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username":"alice","password":"password"}`))

		app.handleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

		var resp loginResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected a JSON body")
		assert.Equal(t, "alice", resp.User.Username, "expected the user snapshot")

		userId, err := auth.VerifyToken(testSigningKey, resp.Token)
		assert.NoError(t, err, "expected the token to verify")
		assert.Equal(t, 1, userId, "expected the token to carry the user id")
	})

	t.Run("wrong password", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetUserByUsername", "alice").Return(user, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username":"alice","password":"wrong"}`))

		app.handleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code 401")
		assert.Equal(t, CodeInvalidCredentials, decodeApiError(t, rr).Code, "expected invalid credentials code")
	})

	t.Run("unknown user", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetUserByUsername", "ghost").Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username":"ghost","password":"password"}`))

		app.handleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code 401")
	})
}

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockTitanRepository{})

	var gotUserId int
	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)

		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code 401")
	})

	t.Run("invalid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")

		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code 401")
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.CreateToken(testSigningKey, 7, time.Hour)
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
		assert.Equal(t, 7, gotUserId, "expected the user id from the token")
	})
}

func TestAdminMiddleware(t *testing.T) {
	tcases := []struct {
		name         string
		user         database.User
		expectedCode int
	}{
		{
			name:         "admin passes",
			user:         database.User{Id: 1, Username: "admin", IsAdmin: true},
			expectedCode: http.StatusOK,
		},
		{
			name:         "non-admin is rejected",
			user:         database.User{Id: 1, Username: "alice"},
			expectedCode: http.StatusForbidden,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockTitanRepository{}
			db.On("GetUserById", 1).Return(tc.user, nil).Once()

			app := newTestApp(t, db)
			handler := app.adminMiddleware(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			token, err := auth.CreateToken(testSigningKey, 1, time.Hour)
			assert.NoError(t, err)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			handler(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to match")
		})
	}
}

func TestHandleUpload(t *testing.T) {
	t.Run("unknown category creates no entry", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		app := newTestApp(t, db)

		body, contentType := multipartBody(t, map[string]string{
			"name":     "Some App",
			"category": "malware",
		}, "app.zip", []byte("zipdata"))

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/upload", body), 1)
		req.Header.Set("Content-Type", contentType)

		app.handleUpload(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
		assert.Equal(t, CodeInvalidCategory, decodeApiError(t, rr).Code, "expected invalid category code")
		db.AssertNotCalled(t, "CreateEntry", mock.Anything)
	})

	t.Run("oversize file is rejected", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		app := newTestApp(t, db)
		app.config.MaxUploadSize = 8

		body, contentType := multipartBody(t, map[string]string{
			"name":     "Some App",
			"category": "application",
		}, "app.zip", []byte("way more than eight bytes"))

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/upload", body), 1)
		req.Header.Set("Content-Type", contentType)

		app.handleUpload(rr, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, "expected status code 413")
		assert.Equal(t, CodeFileTooLarge, decodeApiError(t, rr).Code, "expected file too large code")
		db.AssertNotCalled(t, "CreateEntry", mock.Anything)
	})

	t.Run("successful upload stores the file pending", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateEntry", database.CreateEntryParams{
			Name:        "Some App",
			Description: "a useful app",
			Category:    "application",
			Version:     "1.0",
			AuthorId:    1,
			FileSize:    7,
		}).Return(database.RepositoryEntry{
			Id:       3,
			Name:     "Some App",
			Category: "application",
			AuthorId: 1,
			FileSize: 7,
			Status:   database.StatusPending,
		}, nil).Once()
		db.On("UpdateEntryFilePath", 3, mock.AnythingOfType("string")).Return(nil).Once()

		app := newTestApp(t, db)

		body, contentType := multipartBody(t, map[string]string{
			"name":        "Some App",
			"description": "a useful app",
			"category":    "application",
			"version":     "1.0",
		}, "app.zip", []byte("zipdata"))

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/upload", body), 1)
		req.Header.Set("Content-Type", contentType)

		app.handleUpload(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		stored, err := os.ReadFile(filepath.Join(app.pendingDir(), "3.zip"))
		assert.NoError(t, err, "expected the file to be stored under pending")
		assert.Equal(t, []byte("zipdata"), stored, "expected the stored bytes to match")
	})
}

func TestHandleDownload(t *testing.T) {
	t.Run("unknown entry", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetEntryById", 9).Return(database.RepositoryEntry{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/download/9", nil)
		req.SetPathValue("id", "9")

		app.handleDownload(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})

	t.Run("pending entry is not downloadable", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:     3,
			Status: database.StatusPending,
		}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/download/3", nil)
		req.SetPathValue("id", "3")

		app.handleDownload(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
		assert.Equal(t, CodeNotApproved, decodeApiError(t, rr).Code, "expected not approved code")
		db.AssertNotCalled(t, "IncrementEntryDownloads", mock.Anything)
	})

	t.Run("approved entry is served and counted", func(t *testing.T) {
		app := newTestApp(t, nil)

		storedPath := filepath.Join(app.approvedDir(), "3.zip")
		assert.NoError(t, os.WriteFile(storedPath, []byte("zipdata"), 0o644))

		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:             3,
			Name:           "Some App",
			Status:         database.StatusApproved,
			StoredFilePath: storedPath,
		}, nil).Once()
		db.On("IncrementEntryDownloads", 3).Return(nil).Once()
		app.db = db

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/download/3", nil)
		req.SetPathValue("id", "3")

		app.handleDownload(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
		assert.Equal(t, "zipdata", rr.Body.String(), "expected the file contents")
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "Some App.zip",
			"expected a download file name built from the entry name")
	})
}

func TestHandleApprove(t *testing.T) {
	t.Run("already approved entry", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:     3,
			Status: database.StatusApproved,
		}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/approve/3", nil), 1)
		req.SetPathValue("id", "3")

		app.handleApprove(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
		db.AssertNotCalled(t, "ApproveEntry", mock.Anything, mock.Anything)
	})

	t.Run("missing file leaves the entry pending", func(t *testing.T) {
		app := newTestApp(t, nil)

		db := &database.MockTitanRepository{}
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:             3,
			Status:         database.StatusPending,
			StoredFilePath: filepath.Join(app.pendingDir(), "3.zip"),
		}, nil).Once()
		app.db = db

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/approve/3", nil), 1)
		req.SetPathValue("id", "3")

		app.handleApprove(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code 500")
		db.AssertNotCalled(t, "ApproveEntry", mock.Anything, mock.Anything)
	})

	t.Run("approval moves the file", func(t *testing.T) {
		app := newTestApp(t, nil)

		pendingPath := filepath.Join(app.pendingDir(), "3.zip")
		assert.NoError(t, os.WriteFile(pendingPath, []byte("zipdata"), 0o644))
		approvedPath := filepath.Join(app.approvedDir(), "3.zip")

		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:             3,
			Status:         database.StatusPending,
			StoredFilePath: pendingPath,
		}, nil).Once()
		db.On("ApproveEntry", 3, 1).Return(nil).Once()
		db.On("UpdateEntryFilePath", 3, approvedPath).Return(nil).Once()
		db.On("GetEntryById", 3).Return(database.RepositoryEntry{
			Id:             3,
			Status:         database.StatusApproved,
			StoredFilePath: approvedPath,
		}, nil).Once()
		app.db = db

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/approve/3", nil), 1)
		req.SetPathValue("id", "3")

		app.handleApprove(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
		assert.FileExists(t, approvedPath, "expected the file to be moved to approved")
		assert.NoFileExists(t, pendingPath, "expected the pending file to be gone")
	})
}

func TestHandleDelete(t *testing.T) {
	entry := database.RepositoryEntry{
		Id:       3,
		AuthorId: 2,
		Status:   database.StatusPending,
	}

	t.Run("non-author non-admin is rejected", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("GetEntryById", 3).Return(entry, nil).Once()
		db.On("GetUserById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodDelete, "/api/delete/3", nil), 1)
		req.SetPathValue("id", "3")

		app.handleDelete(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
		db.AssertNotCalled(t, "DeleteEntry", mock.Anything)
	})

	t.Run("author deletes own entry", func(t *testing.T) {
		app := newTestApp(t, nil)

		storedPath := filepath.Join(app.pendingDir(), "3.zip")
		assert.NoError(t, os.WriteFile(storedPath, []byte("zipdata"), 0o644))

		ownEntry := entry
		ownEntry.StoredFilePath = storedPath

		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("GetEntryById", 3).Return(ownEntry, nil).Once()
		db.On("DeleteEntry", 3).Return(nil).Once()
		app.db = db

		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodDelete, "/api/delete/3", nil), 2)
		req.SetPathValue("id", "3")

		app.handleDelete(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
		assert.NoFileExists(t, storedPath, "expected the stored file to be removed")
	})

	t.Run("admin deletes any entry", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("GetEntryById", 3).Return(entry, nil).Once()
		db.On("GetUserById", 1).Return(database.User{Id: 1, Username: "admin", IsAdmin: true}, nil).Once()
		db.On("DeleteEntry", 3).Return(nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodDelete, "/api/delete/3", nil), 1)
		req.SetPathValue("id", "3")

		app.handleDelete(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})
}

func TestHandleListRepository(t *testing.T) {
	t.Run("invalid category", func(t *testing.T) {
		app := newTestApp(t, &database.MockTitanRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/repository/malware", nil)
		req.SetPathValue("category", "malware")

		app.handleListRepository(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
		assert.Equal(t, CodeInvalidCategory, decodeApiError(t, rr).Code, "expected invalid category code")
	})

	t.Run("lists approved entries", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		db.On("ListApprovedEntries", "game").Return([]database.RepositoryEntry{
			{Id: 1, Name: "Chess", Category: "game", Status: database.StatusApproved},
		}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/repository/game", nil)
		req.SetPathValue("category", "game")

		app.handleListRepository(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
		assert.Contains(t, rr.Body.String(), "Chess", "expected the entry in the response")
	})
}

func TestHandleStats(t *testing.T) {
	db := &database.MockTitanRepository{}
	db.On("GetRepositoryStats").Return(database.RepositoryStats{
		TotalApproved:  4,
		TotalPending:   2,
		TotalDownloads: 17,
		Categories:     map[string]int{"application": 3, "game": 1},
	}, nil).Once()

	app := newTestApp(t, db)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)

	app.handleStats(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

	var resp repositoryStatsResponse
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected a JSON body")
	assert.Equal(t, 4, resp.TotalApproved, "expected approved total")
	assert.Equal(t, 2, resp.TotalPending, "expected pending total")
	assert.Equal(t, 17, resp.TotalDownloads, "expected download total")
	assert.Equal(t, 3, resp.Categories["application"], "expected per-category counts")
}

func TestHandleSearch(t *testing.T) {
	t.Run("invalid category", func(t *testing.T) {
		app := newTestApp(t, &database.MockTitanRepository{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=chess&category=malware", nil)

		app.handleSearch(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})

	t.Run("searches approved entries", func(t *testing.T) {
		db := &database.MockTitanRepository{}
		defer db.AssertExpectations(t)
		db.On("SearchEntries", "chess", "game").Return([]database.RepositoryEntry{
			{Id: 1, Name: "Chess", Category: "game", Status: database.StatusApproved},
		}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=chess&category=game", nil)

		app.handleSearch(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
		assert.Contains(t, rr.Body.String(), "Chess", "expected the match in the response")
	})
}

func TestHandleHealth(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockTitanRepository{}
			db.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, db)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

			app.handleHealth(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.allow("10.0.0.1") {
			allowed++
		}
	}
	assert.Equal(t, uploadBurst, allowed, "expected the burst to cap immediate requests")

	assert.True(t, rl.allow("10.0.0.2"), "expected a fresh address to have its own budget")
}
