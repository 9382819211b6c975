package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/velodyne.defaults.json"

// DefaultCalibrationPath is the calibration shipped with the repo, used when
// no path is configured.
const DefaultCalibrationPath = "config/angles.config"

const (
	defaultFrameID     = "velodyne"
	defaultUDPAddress  = ":2368"
	defaultRcvBuf      = 4 << 20
	defaultHTTPListen  = ":8081"
	defaultRecordEvery = 100
	defaultLogInterval = time.Minute
	maxFileSize        = 1 << 20
)

// Config is the daemon configuration. Every field is optional; the Get*
// methods supply defaults for fields left unset.
type Config struct {
	CalibrationPath   *string `json:"calibration_path,omitempty" yaml:"calibration_path,omitempty"`
	FrameID           *string `json:"frame_id,omitempty" yaml:"frame_id,omitempty"`
	UDPAddress        *string `json:"udp_address,omitempty" yaml:"udp_address,omitempty"`
	RcvBuf            *int    `json:"rcv_buf,omitempty" yaml:"rcv_buf,omitempty"`
	HTTPListen        *string `json:"http_listen,omitempty" yaml:"http_listen,omitempty"`
	DBPath            *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	RecordEvery       *int    `json:"record_every,omitempty" yaml:"record_every,omitempty"`
	LogInterval       *string `json:"log_interval,omitempty" yaml:"log_interval,omitempty"` // duration string like "30s"
	ForwardAddress    *string `json:"forward_address,omitempty" yaml:"forward_address,omitempty"`
	StrictCalibration *bool   `json:"strict_calibration,omitempty" yaml:"strict_calibration,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// Load reads a .json, .yaml or .yml config file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.RecordEvery != nil && *c.RecordEvery < 1 {
		return fmt.Errorf("record_every must be at least 1, got %d", *c.RecordEvery)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %s", d)
		}
	}
	for name, addr := range map[string]*string{
		"udp_address":     c.UDPAddress,
		"http_listen":     c.HTTPListen,
		"forward_address": c.ForwardAddress,
	} {
		if addr == nil || *addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(*addr); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *addr, err)
		}
	}
	if c.FrameID != nil && *c.FrameID == "" {
		return fmt.Errorf("frame_id must not be empty")
	}
	return nil
}

// Merge overlays the fields set in o onto c.
func (c *Config) Merge(o *Config) {
	if o == nil {
		return
	}
	if o.CalibrationPath != nil {
		c.CalibrationPath = o.CalibrationPath
	}
	if o.FrameID != nil {
		c.FrameID = o.FrameID
	}
	if o.UDPAddress != nil {
		c.UDPAddress = o.UDPAddress
	}
	if o.RcvBuf != nil {
		c.RcvBuf = o.RcvBuf
	}
	if o.HTTPListen != nil {
		c.HTTPListen = o.HTTPListen
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.RecordEvery != nil {
		c.RecordEvery = o.RecordEvery
	}
	if o.LogInterval != nil {
		c.LogInterval = o.LogInterval
	}
	if o.ForwardAddress != nil {
		c.ForwardAddress = o.ForwardAddress
	}
	if o.StrictCalibration != nil {
		c.StrictCalibration = o.StrictCalibration
	}
}

// HasCalibrationPath reports whether a calibration path was configured.
func (c *Config) HasCalibrationPath() bool {
	return c.CalibrationPath != nil && *c.CalibrationPath != ""
}

// GetCalibrationPath returns the calibration file, or DefaultCalibrationPath.
func (c *Config) GetCalibrationPath() string {
	if !c.HasCalibrationPath() {
		return DefaultCalibrationPath
	}
	return *c.CalibrationPath
}

func (c *Config) GetFrameID() string {
	if c.FrameID == nil {
		return defaultFrameID
	}
	return *c.FrameID
}

func (c *Config) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return defaultUDPAddress
	}
	return *c.UDPAddress
}

func (c *Config) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return defaultRcvBuf
	}
	return *c.RcvBuf
}

func (c *Config) GetHTTPListen() string {
	if c.HTTPListen == nil || *c.HTTPListen == "" {
		return defaultHTTPListen
	}
	return *c.HTTPListen
}

// GetDBPath returns the SQLite path; empty disables persistence.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

func (c *Config) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return defaultRecordEvery
	}
	return *c.RecordEvery
}

func (c *Config) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return defaultLogInterval
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil || d <= 0 {
		return defaultLogInterval
	}
	return d
}

// GetForwardAddress returns the packet mirror destination; empty disables forwarding.
func (c *Config) GetForwardAddress() string {
	if c.ForwardAddress == nil {
		return ""
	}
	return *c.ForwardAddress
}

func (c *Config) GetStrictCalibration() bool {
	if c.StrictCalibration == nil {
		return false
	}
	return *c.StrictCalibration
}
