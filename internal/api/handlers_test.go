package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pbassett/roomrelay/internal/database"
	"github.com/pbassett/roomrelay/internal/testutil"
	"github.com/pbassett/roomrelay/internal/types"
)

func newHandlerApp(t *testing.T) (*RelayApp, *database.MockRelayRepository) {
	repo := &database.MockRelayRepository{}
	app := &RelayApp{
		log:        testutil.TestLogger(t),
		db:         repo,
		signingKey: []byte("test-signing-key"),
	}
	return app, repo
}

func passwordHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLogin(t *testing.T) {
	app, repo := newHandlerApp(t)

	repo.On("GetAccountByEmail", "alice@example.com").Return(database.User{
		Id:           1,
		Username:     "alice",
		EmailAddress: "alice@example.com",
		PasswordHash: passwordHash(t, "hunter2"),
		Role:         string(types.RoleGuest),
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"hunter2"}`))
	rr := httptest.NewRecorder()

	app.login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var u types.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, "alice", u.Username)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, tokenCookieKey, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_wrongPassword(t *testing.T) {
	app, repo := newHandlerApp(t)

	repo.On("GetAccountByEmail", "alice@example.com").Return(database.User{
		Id:           1,
		PasswordHash: passwordHash(t, "hunter2"),
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	rr := httptest.NewRecorder()

	app.login(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestLogin_unknownAccount(t *testing.T) {
	app, repo := newHandlerApp(t)

	repo.On("GetAccountByEmail", "ghost@example.com").Return(database.User{}, sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ghost@example.com","password":"hunter2"}`))
	rr := httptest.NewRecorder()

	app.login(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLogin_missingFields(t *testing.T) {
	app, _ := newHandlerApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com"}`))
	rr := httptest.NewRecorder()

	app.login(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthMiddleware(t *testing.T) {
	app, _ := newHandlerApp(t)

	token, err := app.createJwtForSession(types.User{Id: 9}, time.Hour)
	require.NoError(t, err)

	var gotUserId int
	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(createJwtCookie(token, time.Hour))
	rr := httptest.NewRecorder()

	handler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 9, gotUserId)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
}

func TestAuthMiddleware_missingCookie(t *testing.T) {
	app, _ := newHandlerApp(t)

	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	rr := httptest.NewRecorder()

	handler(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_badToken(t *testing.T) {
	app, _ := newHandlerApp(t)

	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a forged token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(createJwtCookie("forged", time.Hour))
	rr := httptest.NewRecorder()

	handler(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSession(t *testing.T) {
	app, repo := newHandlerApp(t)

	repo.On("GetAccountById", 9).Return(database.User{
		Id:       9,
		Username: "alice",
		Role:     string(types.RoleModerator),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req = req.WithContext(WithUserId(req.Context(), 9))
	rr := httptest.NewRecorder()

	app.session(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var u types.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, 9, u.Id)
	assert.Equal(t, types.RoleModerator, u.Role)
}

func TestLogout_expiresCookie(t *testing.T) {
	app, _ := newHandlerApp(t)

	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.False(t, cookies[0].Expires.After(time.Now()))
}

func TestGetMessages(t *testing.T) {
	app, repo := newHandlerApp(t)

	room := database.Room{Id: 7, ExternalId: "rm-abc"}
	repo.On("GetRoomByExternalId", "rm-abc").Return(room, nil)
	repo.On("MembershipExists", 9, room.Id).Return(true)
	repo.On("GetMessages", room.Id, 10).Return([]database.Message{
		{Id: "m1", RoomId: room.Id, Sender: "alice", Content: "hi"},
		{Id: "m2", RoomId: room.Id, AgentId: "aria", Sender: "Aria", Content: "hello"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=rm-abc&limit=10", nil)
	req = req.WithContext(WithUserId(req.Context(), 9))
	rr := httptest.NewRecorder()

	app.getMessages(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var messages []types.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "aria", messages[1].AgentId)
}

func TestGetMessages_nonMemberForbidden(t *testing.T) {
	app, repo := newHandlerApp(t)

	room := database.Room{Id: 7, ExternalId: "rm-abc"}
	repo.On("GetRoomByExternalId", "rm-abc").Return(room, nil)
	repo.On("MembershipExists", 9, room.Id).Return(false)

	req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=rm-abc", nil)
	req = req.WithContext(WithUserId(req.Context(), 9))
	rr := httptest.NewRecorder()

	app.getMessages(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetMessages_missingRoomId(t *testing.T) {
	app, _ := newHandlerApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req = req.WithContext(WithUserId(req.Context(), 9))
	rr := httptest.NewRecorder()

	app.getMessages(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorHandler_recoversPanics(t *testing.T) {
	app, _ := newHandlerApp(t)

	handler := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var apiErr ApiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}
