package parse

import (
	"github.com/chewxy/math32"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// Project converts a decoded sample to Cartesian sensor-frame coordinates.
// X points along heading 0, Z up.
func Project(s lidar.DecodedSample) lidar.Point3D {
	xy := s.Range * math32.Cos(s.Pitch)
	return lidar.Point3D{
		X:          xy * math32.Cos(s.Heading),
		Y:          xy * math32.Sin(s.Heading),
		Z:          s.Range * math32.Sin(s.Pitch),
		LaserIndex: s.LaserIndex,
		Heading:    s.Heading,
		Revolution: s.Revolution,
		Intensity:  s.Intensity,
	}
}

// ProjectAll projects samples into out, which must be at least as long.
// It returns the number of points written.
func ProjectAll(samples []lidar.DecodedSample, out []lidar.Point3D) int {
	n := len(samples)
	if len(out) < n {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = Project(samples[i])
	}
	return n
}
