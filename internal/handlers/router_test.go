package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-detection-pipeline/internal/workflows"
)

func TestNewRouter(t *testing.T) {
	runner := &fakeRunner{status: &workflows.WorkflowStatus{RunID: "abc", State: "PENDING"}}
	async := NewAsyncHandler(runner, nil)
	srv := httptest.NewServer(NewRouter(Routes{
		Mode:   "worker",
		Detect: async.HandleDetectAsync,
		Status: async.HandleStatus,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("detect_jobs_total 0\n"))
		}),
	}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/detect", "application/json", strings.NewReader(`{"channel":"demo"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, runner.enqueued, 1)

	resp, err = http.Get(srv.URL + "/v1/runs/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// feedback is not mounted without a store
	resp, err = http.Post(srv.URL+"/v1/feedback", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/detect")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
