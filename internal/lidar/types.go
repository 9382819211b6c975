package lidar

import "time"

// HDL-64E geometry. The sensor carries 64 lasers split into two banks of 32;
// each data block in a packet reports one bank at one rotational position.
const (
	NumLasers        = 64
	BankSize         = NumLasers / 2
	BlocksPerPacket  = 12
	ReturnsPerBlock  = BankSize
	SamplesPerPacket = BlocksPerPacket * ReturnsPerBlock // 384
)

// DecodedSample is a single laser return after calibration.
// Angles are in radians, range in meters.
type DecodedSample struct {
	LaserIndex int
	Heading    float32 // normalised to (-π, π]
	Pitch      float32
	Range      float32
	Intensity  uint8
	Revolution uint16 // raw rotation counter, uninterpreted
}

// Point3D is the Cartesian projection of a DecodedSample in the sensor frame.
type Point3D struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
	LaserIndex int     `json:"laser"`
	Heading    float32 `json:"heading"`
	Revolution uint16  `json:"revolution"`
	Intensity  uint8   `json:"intensity"`
}

// PointBatch is the ordered set of points decoded from one packet.
// Points may alias a buffer owned by the decoder; call Clone to retain it
// past the next decode.
type PointBatch struct {
	Points    []Point3D
	Timestamp time.Time
	FrameID   string
}

// Len returns the number of points in the batch.
func (b PointBatch) Len() int { return len(b.Points) }

// Empty reports whether the batch carries no points.
func (b PointBatch) Empty() bool { return len(b.Points) == 0 }

// Clone returns a deep copy of the batch that does not share the point slice.
func (b PointBatch) Clone() PointBatch {
	out := b
	if b.Points != nil {
		out.Points = make([]Point3D, len(b.Points))
		copy(out.Points, b.Points)
	}
	return out
}

// CopyInto copies the batch into dst, reusing dst's point storage when it has
// enough capacity.
func (b PointBatch) CopyInto(dst *PointBatch) {
	if cap(dst.Points) < len(b.Points) {
		dst.Points = make([]Point3D, len(b.Points))
	}
	dst.Points = dst.Points[:len(b.Points)]
	copy(dst.Points, b.Points)
	dst.Timestamp = b.Timestamp
	dst.FrameID = b.FrameID
}
