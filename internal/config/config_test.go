package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	gt.NoError(t, err)

	gt.Equal(t, cfg.Server.Port, 9000)
	gt.Equal(t, cfg.Registration.CaptureCount, 3)
	gt.Equal(t, cfg.Worker.Concurrency, 4)
	gt.Equal(t, cfg.Worker.MetricsPort, 8082)
	gt.Equal(t, cfg.Recognition.Threshold, 0.6)
	gt.Equal(t, cfg.Camera.CaptureInterval, time.Second)
	gt.Equal(t, cfg.Storage.Backend, StorageBackendLocal)
	gt.Equal(t, cfg.VectorStore.Backend, VectorBackendPostgres)
	gt.Equal(t, cfg.VectorStore.CollectionName, "face_embeddings")
}

func TestLoadReadsYAML(t *testing.T) {
	body := `
registration:
  capture_count: 5
recognition:
  threshold: 0.75
camera:
  enabled: true
  device_id: rtsp://gate-1/stream
  read_timeout: 2s
storage:
  backend: local
  image_storage_path: /var/lib/faceid/profiles
vector_store:
  backend: memory
  collection_name: kiosk
`
	cfg, err := Load(writeConfig(t, body))
	gt.NoError(t, err)

	gt.Equal(t, cfg.Registration.CaptureCount, 5)
	gt.Equal(t, cfg.Recognition.Threshold, 0.75)
	gt.True(t, cfg.Camera.Enabled)
	gt.Equal(t, cfg.Camera.DeviceID, "rtsp://gate-1/stream")
	gt.Equal(t, cfg.Camera.ReadTimeout, 2*time.Second)
	gt.Equal(t, cfg.VectorStore.Backend, VectorBackendMemory)
	gt.Equal(t, cfg.VectorStore.CollectionName, "kiosk")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FACEID_CAPTURE_COUNT", "4")
	t.Setenv("FACEID_RECOGNITION_THRESHOLD", "0.5")
	t.Setenv("FACEID_API_KEYS", "a, b,,c")
	t.Setenv("FACEID_NATS_URL", "nats://localhost:4222")
	t.Setenv("FACEID_LOG_FILE", "logs/faceid.log")

	cfg, err := Load(writeConfig(t, "{}\n"))
	gt.NoError(t, err)

	gt.Equal(t, cfg.Registration.CaptureCount, 4)
	gt.Equal(t, cfg.Recognition.Threshold, 0.5)
	gt.A(t, cfg.Server.APIKeys).Length(3)
	gt.True(t, cfg.NATS.Enabled)
	gt.Equal(t, cfg.Logging.File, "logs/faceid.log")
}

func TestLoadKeepsExplicitZeroThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, "recognition:\n  threshold: 0\n"))
	gt.NoError(t, err)
	gt.Equal(t, cfg.Recognition.Threshold, 0.0)

	cfg, err = Load(writeConfig(t, "recognition: {}\n"))
	gt.NoError(t, err)
	gt.Equal(t, cfg.Recognition.Threshold, 0.6)
}

func TestLoadEnvZeroThresholdSurvivesDefaults(t *testing.T) {
	t.Setenv("FACEID_RECOGNITION_THRESHOLD", "0")

	cfg, err := Load(writeConfig(t, "{}\n"))
	gt.NoError(t, err)
	gt.Equal(t, cfg.Recognition.Threshold, 0.0)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative capture count", func(c *Config) { c.Registration.CaptureCount = -1 }},
		{"threshold above one", func(c *Config) { c.Recognition.Threshold = 1.2 }},
		{"threshold below zero", func(c *Config) { c.Recognition.Threshold = -0.1 }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"minio without bucket", func(c *Config) { c.Storage.Backend = StorageBackendMinIO; c.MinIO.Endpoint = "minio:9000" }},
		{"unknown vector backend", func(c *Config) { c.VectorStore.Backend = "chroma" }},
		{"empty collection", func(c *Config) { c.VectorStore.CollectionName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			gt.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			gt.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.Error(t, err)
}
