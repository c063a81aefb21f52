package mediamtx

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePathProvisionsCamName(t *testing.T) {
	var sawPath atomic.Value
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	pm := NewPathManager(c)

	urls, err := pm.EnsurePath(context.Background(), 0, "/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, "/v3/config/paths/add/cam0", sawPath.Load())
	assert.True(t, strings.HasSuffix(urls.RTSP, "/cam0"))
}

func TestDeletePathToleratesMissing(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	pm := NewPathManager(c)

	assert.NoError(t, pm.DeletePath(context.Background(), 3))
	assert.NoError(t, pm.DeletePath(context.Background(), 3))
}
