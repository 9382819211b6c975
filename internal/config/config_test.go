package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetCalibrationPath(); got != DefaultCalibrationPath {
		t.Errorf("GetCalibrationPath() = %q", got)
	}
	if cfg.HasCalibrationPath() {
		t.Error("HasCalibrationPath() = true for empty config")
	}
	if got := cfg.GetFrameID(); got != "velodyne" {
		t.Errorf("GetFrameID() = %q", got)
	}
	if got := cfg.GetUDPAddress(); got != ":2368" {
		t.Errorf("GetUDPAddress() = %q", got)
	}
	if got := cfg.GetRcvBuf(); got != 4<<20 {
		t.Errorf("GetRcvBuf() = %d", got)
	}
	if got := cfg.GetHTTPListen(); got != ":8081" {
		t.Errorf("GetHTTPListen() = %q", got)
	}
	if got := cfg.GetDBPath(); got != "" {
		t.Errorf("GetDBPath() = %q", got)
	}
	if got := cfg.GetRecordEvery(); got != 100 {
		t.Errorf("GetRecordEvery() = %d", got)
	}
	if got := cfg.GetLogInterval(); got != time.Minute {
		t.Errorf("GetLogInterval() = %v", got)
	}
	if got := cfg.GetForwardAddress(); got != "" {
		t.Errorf("GetForwardAddress() = %q", got)
	}
	if cfg.GetStrictCalibration() {
		t.Error("GetStrictCalibration() = true")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "velodyne.json", `{
  "calibration_path": "/etc/velodyne/angles.config",
  "frame_id": "roof",
  "rcv_buf": 1048576,
  "db_path": "lidar.db",
  "record_every": 10,
  "log_interval": "30s",
  "forward_address": "127.0.0.1:2369",
  "strict_calibration": true
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		CalibrationPath:   ptrString("/etc/velodyne/angles.config"),
		FrameID:           ptrString("roof"),
		RcvBuf:            ptrInt(1 << 20),
		DBPath:            ptrString("lidar.db"),
		RecordEvery:       ptrInt(10),
		LogInterval:       ptrString("30s"),
		ForwardAddress:    ptrString("127.0.0.1:2369"),
		StrictCalibration: ptrBool(true),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetLogInterval() != 30*time.Second {
		t.Errorf("GetLogInterval() = %v", cfg.GetLogInterval())
	}
	// Unset fields keep defaults.
	if cfg.GetUDPAddress() != ":2368" {
		t.Errorf("GetUDPAddress() = %q", cfg.GetUDPAddress())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "velodyne.yaml", `
calibration_path: angles.config
frame_id: mast
udp_address: 0.0.0.0:2368
http_listen: 127.0.0.1:9000
strict_calibration: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetCalibrationPath() != "angles.config" || cfg.GetFrameID() != "mast" {
		t.Errorf("got %q / %q", cfg.GetCalibrationPath(), cfg.GetFrameID())
	}
	if cfg.GetHTTPListen() != "127.0.0.1:9000" {
		t.Errorf("GetHTTPListen() = %q", cfg.GetHTTPListen())
	}
	if !cfg.GetStrictCalibration() {
		t.Error("GetStrictCalibration() = false")
	}
}

func TestLoadErrors(t *testing.T) {
	big := writeFile(t, "big.json", `{"frame_id": "`+strings.Repeat("x", maxFileSize)+`"}`)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"extension", writeFile(t, "cfg.toml", ""), "extension"},
		{"missing", filepath.Join(t.TempDir(), "none.json"), "failed to stat"},
		{"too large", big, "too large"},
		{"bad json", writeFile(t, "bad.json", `{"frame_id": }`), "failed to parse"},
		{"bad yaml", writeFile(t, "bad.yaml", "frame_id: [unclosed"), "failed to parse"},
		{"bad interval", writeFile(t, "i.json", `{"log_interval": "soon"}`), "log_interval"},
		{"zero interval", writeFile(t, "z.json", `{"log_interval": "0s"}`), "log_interval"},
		{"negative rcvbuf", writeFile(t, "r.json", `{"rcv_buf": -1}`), "rcv_buf"},
		{"record every", writeFile(t, "e.json", `{"record_every": 0}`), "record_every"},
		{"udp address", writeFile(t, "u.json", `{"udp_address": "2368"}`), "udp_address"},
		{"empty frame", writeFile(t, "f.json", `{"frame_id": ""}`), "frame_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := &Config{FrameID: ptrString("base"), RcvBuf: ptrInt(1)}
	base.Merge(&Config{FrameID: ptrString("override"), DBPath: ptrString("x.db")})
	base.Merge(nil)

	if base.GetFrameID() != "override" {
		t.Errorf("FrameID = %q", base.GetFrameID())
	}
	if base.GetRcvBuf() != 1 {
		t.Errorf("RcvBuf = %d", base.GetRcvBuf())
	}
	if base.GetDBPath() != "x.db" {
		t.Errorf("DBPath = %q", base.GetDBPath())
	}
}

func TestShippedDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	if cfg.GetCalibrationPath() != DefaultCalibrationPath {
		t.Errorf("GetCalibrationPath() = %q", cfg.GetCalibrationPath())
	}
	if _, err := os.Stat(filepath.Join("..", "..", cfg.GetCalibrationPath())); err != nil {
		t.Errorf("default calibration missing: %v", err)
	}
}
