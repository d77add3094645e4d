package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/reservations/internal/model"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

var testUser = &model.User{ID: "u1", Email: "a@example.com", Nickname: "alice"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

// =========================================================================
// COOKIE STORE
// =========================================================================

func TestNewCookieStore_ShortSecret(t *testing.T) {
	_, err := NewCookieStore("short")
	assert.Error(t, err)
}

func TestCookieStore_SaveLoad(t *testing.T) {
	store, err := NewCookieStore(testSecret)
	require.NoError(t, err)

	token, err := store.Save(context.Background(), "", Data{UserID: "u1", User: testUser}, time.Hour)
	require.NoError(t, err)

	data, err := store.Load(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", data.UserID)
	require.NotNil(t, data.User)
	assert.Equal(t, "alice", data.User.Nickname)
}

func TestCookieStore_Expired(t *testing.T) {
	store, err := NewCookieStore(testSecret)
	require.NoError(t, err)

	now := time.Now()
	store.now = func() time.Time { return now }
	token, err := store.Save(context.Background(), "", Data{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	store.now = func() time.Time { return now.Add(61 * time.Minute) }
	_, err = store.Load(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCookieStore_RejectsForeignSignature(t *testing.T) {
	other, err := NewCookieStore("a-completely-different-secret-value")
	require.NoError(t, err)
	token, err := other.Save(context.Background(), "", Data{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	store, err := NewCookieStore(testSecret)
	require.NoError(t, err)
	_, err = store.Load(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =========================================================================
// REDIS STORE
// =========================================================================

func TestRedisStore_SaveLoadDelete(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	token, err := store.Save(ctx, "", Data{UserID: "u1", User: testUser}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("session:"+token))

	data, err := store.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", data.UserID)
	assert.Equal(t, "a@example.com", data.User.Email)

	same, err := store.Save(ctx, token, data, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, token, same, "existing tokens are kept")

	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Load(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	token, err := store.Save(ctx, "", Data{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	mr.FastForward(59 * time.Minute)
	_, err = store.Load(ctx, token)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Load(context.Background(), "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, store.Ping(context.Background()))
}

// =========================================================================
// MANAGER
// =========================================================================

func requestWith(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			require.Nil(t, found, "session cookie set twice")
			found = c
		}
	}
	require.NotNil(t, found, "session cookie not set")
	return found
}

func TestManager_NoCookieIsEmptySession(t *testing.T) {
	store, _ := newRedisStore(t)
	m := NewManager(store, ManagerConfig{}, discardLogger())

	s, err := m.Load(requestWith())
	require.NoError(t, err)
	assert.Empty(t, s.UserID())
	assert.Nil(t, s.CachedUser())

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))
	assert.Empty(t, rec.Header().Values("Set-Cookie"), "empty sessions are not persisted")
}

func TestManager_LoginThenLoad(t *testing.T) {
	store, _ := newRedisStore(t)
	m := NewManager(store, ManagerConfig{TTL: time.Hour}, discardLogger())

	s, err := m.Load(requestWith())
	require.NoError(t, err)
	s.Login(testUser)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	next, err := m.Load(requestWith(cookie))
	require.NoError(t, err)
	assert.Equal(t, "u1", next.UserID())
	require.NotNil(t, next.CachedUser())
	assert.Equal(t, "alice", next.CachedUser().Nickname)
}

func TestManager_SlidingExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	m := NewManager(store, ManagerConfig{TTL: time.Hour}, discardLogger())
	ctx := context.Background()

	s := &Session{}
	s.Login(testUser)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(ctx, rec, s))
	cookie := sessionCookie(t, rec)

	// Each request inside the window pushes expiry out again.
	for i := 0; i < 3; i++ {
		mr.FastForward(45 * time.Minute)
		loaded, err := m.Load(requestWith(cookie))
		require.NoError(t, err)
		require.Equal(t, "u1", loaded.UserID(), "round %d", i)
		require.NoError(t, m.Save(ctx, httptest.NewRecorder(), loaded))
	}

	mr.FastForward(61 * time.Minute)
	loaded, err := m.Load(requestWith(cookie))
	require.NoError(t, err)
	assert.Empty(t, loaded.UserID())
}

func TestManager_LoginRotatesToken(t *testing.T) {
	store, mr := newRedisStore(t)
	m := NewManager(store, ManagerConfig{}, discardLogger())
	ctx := context.Background()

	s := &Session{}
	s.Login(testUser)
	require.NoError(t, m.Save(ctx, httptest.NewRecorder(), s))
	oldToken := s.token

	s.Login(&model.User{ID: "u2", Email: "b@example.com"})
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(ctx, rec, s))

	assert.NotEqual(t, oldToken, s.token)
	assert.False(t, mr.Exists("session:"+oldToken), "old token revoked")
	assert.Equal(t, s.token, sessionCookie(t, rec).Value)
}

func TestManager_ClearExpiresCookie(t *testing.T) {
	store, mr := newRedisStore(t)
	m := NewManager(store, ManagerConfig{}, discardLogger())
	ctx := context.Background()

	s := &Session{}
	s.Login(testUser)
	require.NoError(t, m.Save(ctx, httptest.NewRecorder(), s))
	token := s.token

	s.Clear()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(ctx, rec, s))

	assert.False(t, mr.Exists("session:"+token))
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
}

func TestManager_SaveTwiceSendsOneCookie(t *testing.T) {
	store, err := NewCookieStore(testSecret)
	require.NoError(t, err)
	m := NewManager(store, ManagerConfig{}, discardLogger())

	rec := httptest.NewRecorder()
	http.SetCookie(rec, &http.Cookie{Name: "other", Value: "keep"})

	s := &Session{}
	s.CacheUser(testUser)
	require.NoError(t, m.Save(context.Background(), rec, s))
	s.Login(&model.User{ID: "u2"})
	require.NoError(t, m.Save(context.Background(), rec, s))

	cookie := sessionCookie(t, rec)
	data, err := store.Load(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "u2", data.UserID)
	assert.Len(t, rec.Header().Values("Set-Cookie"), 2, "unrelated cookies survive")
}

func TestManager_InvalidCookieIsEmptySession(t *testing.T) {
	store, err := NewCookieStore(testSecret)
	require.NoError(t, err)
	m := NewManager(store, ManagerConfig{}, discardLogger())

	s, err := m.Load(requestWith(&http.Cookie{Name: DefaultCookieName, Value: "tampered"}))
	require.NoError(t, err)
	assert.Empty(t, s.UserID())
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	s := &Session{}
	s.CacheUser(testUser)
	got := FromContext(NewContext(context.Background(), s))
	assert.Same(t, s, got)
}

func TestCacheUser_StoresCopy(t *testing.T) {
	u := &model.User{ID: "u1", Nickname: "before"}
	s := &Session{}
	s.CacheUser(u)
	u.Nickname = "after"
	assert.Equal(t, "before", s.CachedUser().Nickname)
}
