package monitor

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// BatchSummary describes the most recent point batch.
type BatchSummary struct {
	FrameID       string    `json:"frame_id"`
	Timestamp     time.Time `json:"timestamp"`
	Points        int       `json:"points"`
	Revolution    uint16    `json:"revolution"`
	LasersSeen    int       `json:"lasers_seen"`
	RangeMean     float64   `json:"range_mean_m"`
	RangeStdDev   float64   `json:"range_stddev_m"`
	RangeMin      float64   `json:"range_min_m"`
	RangeMax      float64   `json:"range_max_m"`
	ZMin          float64   `json:"z_min_m"`
	ZMax          float64   `json:"z_max_m"`
	IntensityMean float64   `json:"intensity_mean"`
	HeadingMinDeg float64   `json:"heading_min_deg"`
	HeadingMaxDeg float64   `json:"heading_max_deg"`
}

// Summarize computes descriptive statistics for a batch. An empty batch
// yields a summary with only the header fields set.
func Summarize(batch lidar.PointBatch) BatchSummary {
	s := BatchSummary{
		FrameID:   batch.FrameID,
		Timestamp: batch.Timestamp,
		Points:    batch.Len(),
	}
	if batch.Empty() {
		return s
	}
	s.Revolution = batch.Points[0].Revolution

	n := len(batch.Points)
	ranges := make([]float64, n)
	zs := make([]float64, n)
	intensity := make([]float64, n)
	headings := make([]float64, n)
	var seen [lidar.NumLasers]bool

	for i, p := range batch.Points {
		x, y, z := float64(p.X), float64(p.Y), float64(p.Z)
		ranges[i] = math.Sqrt(x*x + y*y + z*z)
		zs[i] = z
		intensity[i] = float64(p.Intensity)
		headings[i] = float64(lidar.RadiansToDegrees(p.Heading))
		if p.LaserIndex >= 0 && p.LaserIndex < lidar.NumLasers && !seen[p.LaserIndex] {
			seen[p.LaserIndex] = true
			s.LasersSeen++
		}
	}

	s.RangeMean, s.RangeStdDev = stat.MeanStdDev(ranges, nil)
	if n == 1 {
		s.RangeStdDev = 0
	}
	s.RangeMin, s.RangeMax = floats.Min(ranges), floats.Max(ranges)
	s.ZMin, s.ZMax = floats.Min(zs), floats.Max(zs)
	s.IntensityMean = stat.Mean(intensity, nil)
	s.HeadingMinDeg, s.HeadingMaxDeg = floats.Min(headings), floats.Max(headings)
	return s
}
