package lidar

import (
	"bytes"
	"strings"
	"testing"
)

func TestPacketStats_GetAndReset(t *testing.T) {
	ps := NewPacketStats()
	ps.AddPacket(1206)
	ps.AddPacket(1206)
	ps.AddRejected()
	ps.AddDropped()
	ps.AddPoints(SamplesPerPacket)

	snap := ps.GetAndReset()
	if snap.TotalPackets != 2 || snap.TotalPoints != SamplesPerPacket || snap.TotalRejected != 1 {
		t.Errorf("totals = %+v", snap)
	}
	if snap.Rejected != 1 || snap.Dropped != 1 {
		t.Errorf("interval counts = %+v", snap)
	}
	if snap.PacketsPerSec <= 0 || snap.BytesPerSec <= 0 || snap.PointsPerSec <= 0 {
		t.Errorf("rates should be positive: %+v", snap)
	}

	latest := ps.LatestSnapshot()
	if latest == nil || latest.TotalPackets != 2 {
		t.Fatalf("LatestSnapshot() = %+v", latest)
	}

	// Interval counters reset; totals persist.
	next := ps.GetAndReset()
	if next.PacketsPerSec != 0 || next.Rejected != 0 || next.Dropped != 0 {
		t.Errorf("interval not reset: %+v", next)
	}
	if next.TotalPackets != 2 {
		t.Errorf("TotalPackets = %d, want 2", next.TotalPackets)
	}
}

func TestPacketStats_LatestSnapshotBeforeFirstInterval(t *testing.T) {
	if snap := NewPacketStats().LatestSnapshot(); snap != nil {
		t.Errorf("LatestSnapshot() = %+v, want nil", snap)
	}
}

func TestPacketStats_LogStats(t *testing.T) {
	defer SetLogWriters(LogWriters{})
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf})

	ps := NewPacketStats()
	ps.LogStats()
	if buf.Len() != 0 {
		t.Errorf("quiet interval logged %q", buf.String())
	}

	ps.AddPacket(1206)
	ps.AddDropped()
	ps.LogStats()
	got := buf.String()
	if !strings.Contains(got, "Lidar stats") || !strings.Contains(got, "1 dropped on forward") {
		t.Errorf("LogStats output = %q", got)
	}
}

func TestFormatSnapshot(t *testing.T) {
	got := FormatSnapshot(StatsSnapshot{
		PacketsPerSec: 3600,
		BytesPerSec:   3600 * 1206,
		PointsPerSec:  3600 * SamplesPerPacket,
		Rejected:      2,
	})
	for _, want := range []string{"4.3 MB", "3600.0 packets", "1,382,400 points", "2 rejected"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSnapshot() = %q, want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "dropped") {
		t.Errorf("FormatSnapshot() = %q, should omit zero drops", got)
	}
}
