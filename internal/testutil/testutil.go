// Package testutil provides shared test fixtures for the decoder packages.
package testutil

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
)

// IdentityTable returns a fully populated table with zero angular offsets
// and range' = range, so decoded ranges equal raw ranges.
func IdentityTable(t testing.TB) *calibration.Table {
	t.Helper()
	table := calibration.NewTable()
	for i := 0; i < lidar.NumLasers; i++ {
		err := table.Set(calibration.LaserCorrection{
			LaserIndex:    i,
			DistanceCoeff: [3]float32{0, 1, 0},
			Enabled:       true,
		})
		if err != nil {
			t.Fatalf("set laser %d: %v", i, err)
		}
	}
	return table
}

// WriteCalibration writes lines to a calibration file in a temp dir and
// returns its path.
func WriteCalibration(t testing.TB, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "angles.config")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write calibration: %v", err)
	}
	return path
}

// LogBuffer is a goroutine-safe log sink.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CaptureLogs routes the ops and diag streams into a buffer for the rest of
// the test and restores the defaults afterwards.
func CaptureLogs(t testing.TB) *LogBuffer {
	t.Helper()
	buf := &LogBuffer{}
	lidar.SetLogWriters(lidar.LogWriters{Ops: buf, Diag: buf})
	t.Cleanup(func() { lidar.SetLogWriters(lidar.DefaultLogWriters()) })
	return buf
}

// AssertStatusCode checks that a recorded response has the expected status.
func AssertStatusCode(t testing.TB, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}
