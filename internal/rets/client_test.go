package rets

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, loginURL string) Config {
	t.Helper()
	return Config{
		LoginURL:  loginURL,
		Version:   "1.7.2",
		Username:  "user",
		Password:  "pass",
		UserAgent: "retsd/1.0",
		CachePath: filepath.Join(t.TempDir(), "rets-capabilities.json"),
	}
}

func TestClientLoginCachesSession(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		w.Write([]byte(`<RETS-RESPONSE>
ReplyCode=0
ReplyText=Success
Search=/search
GetMetadata=/getmetadata
GetObject=/getobject
Logout=/logout
</RETS-RESPONSE>`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(t, srv.URL+"/login"), slog.Default())

	session, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "JSESSIONID=abc123", session.SessionID)
	assert.Equal(t, srv.URL+"/search", session.Capabilities["Search"])

	// Second login should hit the disk cache, not the server.
	_, err = c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestClientLoginNoCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<RETS-RESPONSE>\nReplyCode=0\nReplyText=Success\n</RETS-RESPONSE>"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(t, srv.URL+"/login"), slog.Default())
	_, err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrNoCookie)
}

func TestClientLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		w.Write([]byte("<RETS-RESPONSE>\nReplyCode=20034\nReplyText=Invalid credentials\n</RETS-RESPONSE>"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(t, srv.URL+"/login"), slog.Default())
	_, err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginRejected)
}

func TestJoinCookies(t *testing.T) {
	got := joinCookies([]string{"A=1; Path=/", "B=2; HttpOnly"})
	assert.Equal(t, "A=1; B=2", got)
}
