package confluence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/restclient"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.Config{ConfluenceURL: baseURL, ConfluenceToken: "token"}
	rc := restclient.New(baseURL, "token", 5*time.Second, zaptest.NewLogger(t))
	c, err := NewClient(cfg, rc, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestMatchPageID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://wiki/pages/viewpage.action?pageId=12345", "12345"},
		{"https://wiki/display/SPACE/Title?pageId=9", "9"},
		{"https://wiki/spaces/KEY/pages/67890/Some+Title", "67890"},
		{"https://wiki/x/AbCdE", ""},
		{"https://wiki/display/SPACE/Title", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPageID(tt.url), tt.url)
	}
}

func TestPageIDFromURLLongForm(t *testing.T) {
	c := testClient(t, "https://wiki.example.com")

	id, ok := c.PageIDFromURL(context.Background(), "https://wiki.example.com/pages/viewpage.action?pageId=555")
	require.True(t, ok)
	assert.Equal(t, "555", id)
}

func TestPageIDFromURLShortLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://wiki.example.com/pages/viewpage.action?pageId=777")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	id, ok := c.PageIDFromURL(context.Background(), srv.URL+"/x/AbCdE")
	require.True(t, ok)
	assert.Equal(t, "777", id)
}

func TestPageIDFromURLUnresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, ok := c.PageIDFromURL(context.Background(), srv.URL+"/x/Nothing")
	assert.False(t, ok)
}

func TestUsernameByKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/user", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("key"))
		w.Write([]byte(`{"username":"jdoe"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	name, ok := c.UsernameByKey(context.Background(), "abc123")
	require.True(t, ok)
	assert.Equal(t, "jdoe", name)
}

func TestWebURL(t *testing.T) {
	c := testClient(t, "https://wiki.example.com")
	assert.Equal(t,
		"https://wiki.example.com/pages/viewpage.action?pageId=42",
		c.webURL("42"))
}
