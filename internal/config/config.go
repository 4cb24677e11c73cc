// Package config loads service configuration from defaults, an optional
// YAML file and AEROGUARDIAN_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "AEROGUARDIAN_"

// Backend names accepted by detector.backend
const (
	BackendHTTP = "http"
	BackendGRPC = "grpc"
	BackendONNX = "onnx"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig     `yaml:"server"`
	Log      LogConfig        `yaml:"log"`
	Detector DetectorConfig   `yaml:"detector"`
	Pipeline pipeline.Options `yaml:"pipeline"`
	Database DatabaseConfig   `yaml:"database"`
	Notify   NotifyConfig     `yaml:"notify"`
	Camera   CameraConfig     `yaml:"camera"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Debug          bool          `yaml:"debug"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls zerolog
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DetectorConfig selects and configures the inference backend
type DetectorConfig struct {
	Backend     string        `yaml:"backend"`
	Endpoint    string        `yaml:"endpoint"`
	ModelPath   string        `yaml:"model_path"`
	LibraryPath string        `yaml:"library_path"`
	LabelsPath  string        `yaml:"labels_path"`
	InputSize   int           `yaml:"input_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Serialize   bool          `yaml:"serialize"` // one in-flight Predict at a time
}

// DatabaseConfig locates the settings store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig configures the Telegram alert notifier
type NotifyConfig struct {
	TelegramToken  string        `yaml:"telegram_token"`
	TelegramChatID string        `yaml:"telegram_chat_id"`
	Cooldown       time.Duration `yaml:"cooldown"`
	// Source limits alerts to one frame source (UPLOAD or LIVE); empty alerts on both
	Source string `yaml:"source"`
}

// Enabled reports whether both Telegram credentials are set
func (n NotifyConfig) Enabled() bool {
	return n.TelegramToken != "" && n.TelegramChatID != ""
}

// SourceMode returns the alert source filter, or "" for every source
func (n NotifyConfig) SourceMode() (mode.Mode, error) {
	if strings.TrimSpace(n.Source) == "" {
		return "", nil
	}
	return mode.Parse(n.Source)
}

// CameraConfig configures the optional server-side live camera. An empty
// device leaves LIVE mode fed by WebSocket clients only.
type CameraConfig struct {
	Device string `yaml:"device"` // V4L2 path, rtsp:// or http(s):// stream or snapshot URL
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FFmpeg string `yaml:"ffmpeg"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			MaxUploadBytes: 20 << 20,
			ShutdownGrace:  5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Detector: DetectorConfig{
			Backend:   BackendHTTP,
			Endpoint:  "http://yolo-service:8081",
			InputSize: 640,
			Timeout:   15 * time.Second,
		},
		Pipeline: pipeline.DefaultOptions(),
		Database: DatabaseConfig{Path: "./data/aeroguardian.db"},
		Notify:   NotifyConfig{Cooldown: 30 * time.Second},
		Camera:   CameraConfig{FPS: 5, Width: 640, Height: 480, FFmpeg: "ffmpeg"},
	}
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Detector.Backend {
	case BackendHTTP, BackendGRPC:
		if c.Detector.Endpoint == "" {
			errs = append(errs, fmt.Errorf("detector.endpoint is required for backend %q", c.Detector.Backend))
		}
	case BackendONNX:
		if c.Detector.ModelPath == "" {
			errs = append(errs, errors.New("detector.model_path is required for backend \"onnx\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown detector.backend %q", c.Detector.Backend))
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Notify.SourceMode(); err != nil {
		errs = append(errs, fmt.Errorf("notify.source: %w", err))
	}
	if c.Camera.Device != "" && c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be positive, got %d", c.Camera.FPS))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("HOST", &cfg.Server.Host)
	integer("PORT", &cfg.Server.Port)
	boolean("DEBUG", &cfg.Server.Debug)

	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_PRETTY", &cfg.Log.Pretty)

	if v, ok := lookup(EnvPrefix + "DETECTOR_BACKEND"); ok && v != "" {
		cfg.Detector.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	str("DETECTOR_ENDPOINT", &cfg.Detector.Endpoint)
	str("DETECTOR_MODEL_PATH", &cfg.Detector.ModelPath)
	str("DETECTOR_LIBRARY_PATH", &cfg.Detector.LibraryPath)
	str("DETECTOR_LABELS_PATH", &cfg.Detector.LabelsPath)
	integer("DETECTOR_INPUT_SIZE", &cfg.Detector.InputSize)
	duration("DETECTOR_TIMEOUT", &cfg.Detector.Timeout)
	boolean("DETECTOR_SERIALIZE", &cfg.Detector.Serialize)

	if v, ok := lookup(EnvPrefix + "CONF_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONF_THRESHOLD: %w", EnvPrefix, err))
		} else {
			cfg.Pipeline.ConfThreshold = float32(f)
		}
	}
	duration("DETECTOR_DEADLINE", &cfg.Pipeline.DetectorTimeout)

	str("DATABASE_PATH", &cfg.Database.Path)

	str("TELEGRAM_BOT_TOKEN", &cfg.Notify.TelegramToken)
	str("TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	duration("NOTIFY_COOLDOWN", &cfg.Notify.Cooldown)
	str("NOTIFY_SOURCE", &cfg.Notify.Source)

	str("CAMERA_DEVICE", &cfg.Camera.Device)
	integer("CAMERA_FPS", &cfg.Camera.FPS)
	integer("CAMERA_WIDTH", &cfg.Camera.Width)
	integer("CAMERA_HEIGHT", &cfg.Camera.Height)
	str("FFMPEG_PATH", &cfg.Camera.FFmpeg)

	return errors.Join(errs...)
}
