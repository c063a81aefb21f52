package files

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camlink/camerad/internal/auth"
	"github.com/camlink/camerad/internal/capture"
)

func testFileServer(t *testing.T, ready ReadyChecker) (*httptest.Server, string, string) {
	t.Helper()
	recDir := t.TempDir()
	snapDir := t.TempDir()

	tokens, err := auth.NewTokenManager("test-secret")
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(tokens, nil)

	s := NewServer(DefaultConfig(),
		capture.NewArtifactStore(recDir),
		capture.NewArtifactStore(snapDir),
		authenticator, ready)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	token, err := tokens.Generate("tester", auth.RoleViewer, time.Hour)
	require.NoError(t, err)
	return ts, recDir, token
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts, _, _ := testFileServer(t, nil)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/health/live", "").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/health/ready", "").StatusCode)
}

func TestReadyReflectsChecker(t *testing.T) {
	ready := false
	ts, _, _ := testFileServer(t, func() bool { return ready })

	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts.URL+"/health/ready", "").StatusCode)
	ready = true
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/health/ready", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := testFileServer(t, nil)

	resp := get(t, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDownloadRequiresAuth(t *testing.T) {
	ts, recDir, token := testFileServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(recDir, "clip.mp4"), []byte("data"), 0o644))

	assert.Equal(t, http.StatusUnauthorized,
		get(t, ts.URL+"/files/recordings/clip.mp4", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized,
		get(t, ts.URL+"/files/recordings/clip.mp4", "garbage").StatusCode)
	assert.Equal(t, http.StatusOK,
		get(t, ts.URL+"/files/recordings/clip.mp4", token).StatusCode)
}

func TestDownloadMissingFile(t *testing.T) {
	ts, _, token := testFileServer(t, nil)

	resp := get(t, ts.URL+"/files/recordings/absent.mp4", token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	ts, _, token := testFileServer(t, nil)

	resp := get(t, ts.URL+"/files/recordings/..%2F..%2Fetc%2Fpasswd", token)
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}
