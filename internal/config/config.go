// Package config loads the pipeline's environment-style configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultImageURL is fetched for channels without an explicit source
const DefaultImageURL = "https://upload.wikimedia.org/wikipedia/commons/2/25/5566_and_Daily_Air_B-55507_20050820.jpg"

// Config holds every recognised option
type Config struct {
	InferenceWidth  int
	InferenceHeight int
	Threshold       float64
	ValidLabels     []string // nil means all labels
	EngineFile      string
	EngineConfig    string
	DetectorURL     string

	RawImageFolder      string
	DetectedImageFolder string
	ChannelImageURLs    map[string]string
	FetchTimeout        time.Duration
	SiteDomain          string

	DBPath string
	Denoise DenoiseConfig

	Notify []NotifyChannel

	ContentArchiveDir string
	ContentOwnerID    string
	ContentTenantID   string

	DBOSDatabaseURL  string
	DBOSQueueName    string
	DBOSConcurrency  int
	WorkerHTTPAddr   string
	PipelineHTTPAddr string
}

// DenoiseConfig tunes the denoise filters
type DenoiseConfig struct {
	Enabled         bool
	Window          time.Duration
	HistorySize     int
	RepetitionRatio float64
	Overlap         float64
	MinBoxArea      int
}

// NotifyChannel configures one notification handler
type NotifyChannel struct {
	Name     string
	URL      string
	Token    string
	Audience []string
	Labels   []string
	Refresh  time.Duration
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	w, h, err := parseShape(getEnv("INFERENCE_SHAPE", "608,608"))
	if err != nil {
		return nil, err
	}
	threshold := getEnvAsFloat("DETECTION_THRESHOLD", 0.14)
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("DETECTION_THRESHOLD must be within [0,1], got %v", threshold)
	}

	cfg := &Config{
		InferenceWidth:  w,
		InferenceHeight: h,
		Threshold:       threshold,
		ValidLabels:     splitList(os.Getenv("VALID_LABELS")),
		EngineFile:      getEnv("ENGINE_FILE", "frozen_inference_graph.pb"),
		EngineConfig:    getEnv("ENGINE_CONFIG", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		DetectorURL:     os.Getenv("DETECTOR_URL"),

		RawImageFolder:      getEnv("RAW_IMAGE_FOLDER", "raw_image"),
		DetectedImageFolder: getEnv("DETECTED_IMAGE_FOLDER", "detected_image"),
		ChannelImageURLs:    parsePairs(os.Getenv("CHANNEL_IMAGE_URLS")),
		FetchTimeout:        getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		SiteDomain:          strings.TrimRight(os.Getenv("SITE_DOMAIN"), "/"),

		DBPath: os.Getenv("DB_PATH"),
		Denoise: DenoiseConfig{
			Enabled:         getEnvAsBool("DENOISE_ENABLED", true),
			Window:          getEnvAsDuration("DENOISE_WINDOW", time.Hour),
			HistorySize:     getEnvAsInt("DENOISE_HISTORY", 20),
			RepetitionRatio: getEnvAsFloat("DENOISE_REPETITION", 0.8),
			Overlap:         getEnvAsFloat("DENOISE_OVERLAP", 0.5),
			MinBoxArea:      getEnvAsInt("DENOISE_MIN_BOX_AREA", 0),
		},

		ContentArchiveDir: os.Getenv("CONTENT_ARCHIVE_DIR"),
		ContentOwnerID:    getEnv("CONTENT_OWNER_ID", "00000000-0000-0000-0000-000000000001"),
		ContentTenantID:   getEnv("CONTENT_TENANT_ID", "00000000-0000-0000-0000-000000000002"),

		DBOSDatabaseURL:  os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		DBOSQueueName:    getEnv("DBOS_QUEUE_NAME", "default"),
		DBOSConcurrency:  getEnvAsInt("DBOS_CONCURRENCY", 4),
		WorkerHTTPAddr:   getEnv("WORKER_HTTP_ADDR", ":8081"),
		PipelineHTTPAddr: getEnv("PIPELINE_HTTP_ADDR", ":8080"),
	}

	for _, name := range splitList(os.Getenv("NOTIFY_CHANNELS")) {
		prefix := "NOTIFY_" + strings.ToUpper(name) + "_"
		url := os.Getenv(prefix + "URL")
		if url == "" {
			// a channel without an endpoint is simply disabled
			continue
		}
		labels := splitList(os.Getenv(prefix + "LABELS"))
		if labels == nil {
			labels = []string{"person"}
		}
		cfg.Notify = append(cfg.Notify, NotifyChannel{
			Name:     name,
			URL:      url,
			Token:    os.Getenv(prefix + "TOKEN"),
			Audience: splitList(os.Getenv(prefix + "AUDIENCE")),
			Labels:   labels,
			Refresh:  getEnvAsDuration(prefix+"REFRESH", 10*time.Second),
		})
	}

	return cfg, nil
}

// ChannelImageURL returns the remote source for channel
func (c *Config) ChannelImageURL(channel string) string {
	if u, ok := c.ChannelImageURLs[channel]; ok && u != "" {
		return u
	}
	return DefaultImageURL
}

func parseShape(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("INFERENCE_SHAPE must be two integers, got %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid INFERENCE_SHAPE width %q", parts[0])
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid INFERENCE_SHAPE height %q", parts[1])
	}
	return w, h, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePairs reads "a=x,b=y"
func parsePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, p := range splitList(s) {
		k, v, ok := strings.Cut(p, "=")
		if ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
