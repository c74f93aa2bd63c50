package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Vision       VisionConfig       `yaml:"vision"`
	Camera       CameraConfig       `yaml:"camera"`
	Registration RegistrationConfig `yaml:"registration"`
	Recognition  RecognitionConfig  `yaml:"recognition"`
	Storage      StorageConfig      `yaml:"storage"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Logging      LoggingConfig      `yaml:"logging"`
	Worker       WorkerConfig       `yaml:"worker"`
}

type ServerConfig struct {
	Port    int      `yaml:"port"`
	APIKeys []string `yaml:"api_keys"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// ONNXLibrary overrides the shared library path picked from GOOS.
	ONNXLibrary string `yaml:"onnx_library"`
}

// CameraConfig describes the single capture device shared by the process.
type CameraConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DeviceID        string        `yaml:"device_id"`
	InputFormat     string        `yaml:"input_format"`
	FrameWidth      int           `yaml:"frame_width"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	CaptureInterval time.Duration `yaml:"capture_interval"`
}

type RegistrationConfig struct {
	CaptureCount int `yaml:"capture_count"`
}

type RecognitionConfig struct {
	Threshold float64 `yaml:"threshold"`

	thresholdSet bool
}

// UnmarshalYAML records whether threshold was given, so an explicit 0 is
// kept instead of being defaulted.
func (r *RecognitionConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Threshold *float64 `yaml:"threshold"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Threshold != nil {
		r.Threshold = *raw.Threshold
		r.thresholdSet = true
	}
	return nil
}

const (
	StorageBackendLocal = "local"
	StorageBackendMinIO = "minio"

	VectorBackendPostgres = "postgres"
	VectorBackendMemory   = "memory"
)

type StorageConfig struct {
	Backend          string `yaml:"backend"`
	ImageStoragePath string `yaml:"image_storage_path"`
}

type VectorStoreConfig struct {
	Backend        string `yaml:"backend"`
	CollectionName string `yaml:"collection_name"`
}

// WorkerConfig drives the audit worker that persists identity events.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	MetricsPort int `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File additionally receives every log line when set.
	File string `yaml:"file"`
}

// Load reads config from YAML file, fills defaults, applies environment
// variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values the enrollment and verification core depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Registration.CaptureCount < 1 {
		errs = append(errs, fmt.Errorf("registration.capture_count must be >= 1, got %d", c.Registration.CaptureCount))
	}
	if c.Recognition.Threshold < 0 || c.Recognition.Threshold > 1 {
		errs = append(errs, fmt.Errorf("recognition.threshold must be in [0,1], got %v", c.Recognition.Threshold))
	}
	switch c.Storage.Backend {
	case StorageBackendLocal:
		if c.Storage.ImageStoragePath == "" {
			errs = append(errs, errors.New("storage.image_storage_path is required for the local backend"))
		}
	case StorageBackendMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.VectorStore.Backend {
	case VectorBackendPostgres, VectorBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.backend %q", c.VectorStore.Backend))
	}
	if c.VectorStore.CollectionName == "" {
		errs = append(errs, errors.New("vector_store.collection_name is required"))
	}
	return errors.Join(errs...)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Camera.DeviceID == "" {
		cfg.Camera.DeviceID = "/dev/video0"
	}
	if cfg.Camera.InputFormat == "" {
		cfg.Camera.InputFormat = "v4l2"
	}
	if cfg.Camera.FrameWidth == 0 {
		cfg.Camera.FrameWidth = 640
	}
	if cfg.Camera.ReadTimeout == 0 {
		cfg.Camera.ReadTimeout = 5 * time.Second
	}
	if cfg.Camera.CaptureInterval == 0 {
		cfg.Camera.CaptureInterval = time.Second
	}
	if cfg.Registration.CaptureCount == 0 {
		cfg.Registration.CaptureCount = 3
	}
	if !cfg.Recognition.thresholdSet {
		cfg.Recognition.Threshold = 0.6
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendLocal
	}
	if cfg.Storage.ImageStoragePath == "" {
		cfg.Storage.ImageStoragePath = "data/profile_images"
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = VectorBackendPostgres
	}
	if cfg.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = "face_embeddings"
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEID_API_KEYS"); v != "" {
		cfg.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("FACEID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("FACEID_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEID_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEID_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEID_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEID_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEID_CAMERA_DEVICE"); v != "" {
		cfg.Camera.DeviceID = v
	}
	if v := os.Getenv("FACEID_CAPTURE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Registration.CaptureCount = n
		}
	}
	if v := os.Getenv("FACEID_RECOGNITION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.Threshold = f
		}
	}
	if v := os.Getenv("FACEID_IMAGE_STORAGE_PATH"); v != "" {
		cfg.Storage.ImageStoragePath = v
	}
	if v := os.Getenv("FACEID_COLLECTION_NAME"); v != "" {
		cfg.VectorStore.CollectionName = v
	}
	if v := os.Getenv("FACEID_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("FACEID_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
