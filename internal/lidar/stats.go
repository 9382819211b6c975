package lidar

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// StatsSnapshot is the rate summary of one logging interval plus running totals.
type StatsSnapshot struct {
	PacketsPerSec float64   `json:"packets_per_sec"`
	BytesPerSec   float64   `json:"bytes_per_sec"`
	PointsPerSec  float64   `json:"points_per_sec"`
	Rejected      int64     `json:"rejected"`
	Dropped       int64     `json:"dropped"`
	TotalPackets  int64     `json:"total_packets"`
	TotalPoints   int64     `json:"total_points"`
	TotalRejected int64     `json:"total_rejected"`
	Timestamp     time.Time `json:"timestamp"`
}

// PacketStats tracks packet statistics with thread-safe operations.
// Interval counters reset on GetAndReset; totals accumulate for the process lifetime.
type PacketStats struct {
	mu            sync.Mutex
	packetCount   int64
	byteCount     int64
	rejectedCount int64
	droppedCount  int64
	pointCount    int64

	totalPackets  int64
	totalPoints   int64
	totalRejected int64

	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
	ps.totalPackets++
}

// AddRejected counts a packet that failed decoding (wrong size, bad bank tag).
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectedCount++
	ps.totalRejected++
}

// AddDropped counts a packet the forwarder could not queue.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddPoints increments decoded point count
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
	ps.totalPoints += int64(count)
}

// GetAndReset returns the rates since the previous call and resets the interval counters.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	secs := now.Sub(ps.lastReset).Seconds()
	if secs <= 0 {
		secs = 1e-9
	}

	snap := StatsSnapshot{
		PacketsPerSec: float64(ps.packetCount) / secs,
		BytesPerSec:   float64(ps.byteCount) / secs,
		PointsPerSec:  float64(ps.pointCount) / secs,
		Rejected:      ps.rejectedCount,
		Dropped:       ps.droppedCount,
		TotalPackets:  ps.totalPackets,
		TotalPoints:   ps.totalPoints,
		TotalRejected: ps.totalRejected,
		Timestamp:     now,
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.rejectedCount = 0
	ps.droppedCount = 0
	ps.pointCount = 0
	ps.lastReset = now
	ps.latestSnapshot = &snap

	return snap
}

// LatestSnapshot returns the snapshot taken by the most recent GetAndReset, or nil.
func (ps *PacketStats) LatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	snap := *ps.latestSnapshot
	return &snap
}

// Uptime returns the time since the stats were created.
func (ps *PacketStats) Uptime() time.Duration {
	return time.Since(ps.startTime)
}

// LogStats logs the interval rates to the ops stream. Quiet intervals are not logged.
func (ps *PacketStats) LogStats() {
	snap := ps.GetAndReset()
	if snap.PacketsPerSec == 0 && snap.Rejected == 0 && snap.Dropped == 0 {
		return
	}
	Opsf("%s", FormatSnapshot(snap))
}

// FormatSnapshot renders a snapshot as a single human-readable line.
func FormatSnapshot(snap StatsSnapshot) string {
	msg := fmt.Sprintf("Lidar stats (/sec): %s, %.1f packets, %s points",
		humanize.Bytes(uint64(snap.BytesPerSec)), snap.PacketsPerSec,
		humanize.Comma(int64(snap.PointsPerSec)))
	if snap.Rejected > 0 {
		msg += fmt.Sprintf(", %d rejected", snap.Rejected)
	}
	if snap.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped on forward", snap.Dropped)
	}
	return msg
}
