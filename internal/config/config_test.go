package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 608, cfg.InferenceWidth)
	assert.Equal(t, 608, cfg.InferenceHeight)
	assert.InDelta(t, 0.14, cfg.Threshold, 1e-9)
	assert.Nil(t, cfg.ValidLabels)
	assert.Equal(t, "raw_image", cfg.RawImageFolder)
	assert.Equal(t, "detected_image", cfg.DetectedImageFolder)
	assert.Empty(t, cfg.DBPath)
	assert.Empty(t, cfg.Notify)
	assert.Equal(t, DefaultImageURL, cfg.ChannelImageURL("demo"))
	assert.Equal(t, ":8081", cfg.WorkerHTTPAddr)
	assert.Equal(t, ":8080", cfg.PipelineHTTPAddr)
	assert.Equal(t, "default", cfg.DBOSQueueName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INFERENCE_SHAPE", "416, 320")
	t.Setenv("DETECTION_THRESHOLD", "0.5")
	t.Setenv("VALID_LABELS", "person, car,,")
	t.Setenv("CHANNEL_IMAGE_URLS", "front=http://cam/front.jpg")
	t.Setenv("SITE_DOMAIN", "https://example.org/")
	t.Setenv("NOTIFY_CHANNELS", "ops,silent")
	t.Setenv("NOTIFY_OPS_URL", "http://hook")
	t.Setenv("NOTIFY_OPS_AUDIENCE", "u1,u2")
	t.Setenv("NOTIFY_OPS_REFRESH", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 416, cfg.InferenceWidth)
	assert.Equal(t, 320, cfg.InferenceHeight)
	assert.Equal(t, []string{"person", "car"}, cfg.ValidLabels)
	assert.Equal(t, "http://cam/front.jpg", cfg.ChannelImageURL("front"))
	assert.Equal(t, "https://example.org", cfg.SiteDomain)

	require.Len(t, cfg.Notify, 1)
	ops := cfg.Notify[0]
	assert.Equal(t, "ops", ops.Name)
	assert.Equal(t, []string{"u1", "u2"}, ops.Audience)
	assert.Equal(t, []string{"person"}, ops.Labels)
	assert.Equal(t, 30*time.Second, ops.Refresh)
}

func TestLoad_InvalidShape(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, shape := range []string{"608", "0,608", "a,b", "1,2,3"} {
		t.Setenv("INFERENCE_SHAPE", shape)
		_, err := Load()
		assert.Error(t, err, shape)
	}
}

func TestLoad_ThresholdOutOfRange(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DETECTION_THRESHOLD", "1.5")

	_, err := Load()
	assert.Error(t, err)
}
