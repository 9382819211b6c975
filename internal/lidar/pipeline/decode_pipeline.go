package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.report/internal/lidar/parse"
)

// State is the pipeline's initialisation state.
type State int

const (
	// StateUninitialized ignores every packet.
	StateUninitialized State = iota
	// StateReady decodes packets with the attached calibration.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrNilTable     = errors.New("calibration table is nil")
	ErrAlreadyReady = errors.New("pipeline already has a calibration table")
)

// Packet is one raw payload with its arrival time, as used by ProcessScan.
type Packet struct {
	Data  []byte
	Stamp time.Time
}

// Option configures a DecodePipeline.
type Option func(*DecodePipeline)

// WithFrameID sets the frame identifier stamped on batches produced through
// HandlePacket.
func WithFrameID(frameID string) Option {
	return func(p *DecodePipeline) { p.frameID = frameID }
}

// WithBatchSink registers the sink that receives every decoded batch.
func WithBatchSink(s BatchSink) Option {
	return func(p *DecodePipeline) { p.batchSink = s }
}

// WithSampleSink registers the sink that receives every packet's polar samples.
func WithSampleSink(s SampleSink) Option {
	return func(p *DecodePipeline) { p.sampleSink = s }
}

// WithStats records decoded point counts.
func WithStats(stats *lidar.PacketStats) Option {
	return func(p *DecodePipeline) { p.stats = stats }
}

// DecodePipeline decodes packets for one sensor. Process and its callers
// are not safe for concurrent use; run one pipeline per goroutine and share
// the table. State, Table and Counters may be read from any goroutine.
type DecodePipeline struct {
	table   atomic.Pointer[calibration.Table]
	frameID string

	samples []lidar.DecodedSample
	points  []lidar.Point3D

	batchSink  BatchSink
	sampleSink SampleSink
	stats      *lidar.PacketStats

	packets  atomic.Uint64
	rejected atomic.Uint64
}

// New creates an Uninitialized pipeline with its buffers reserved.
func New(opts ...Option) *DecodePipeline {
	p := &DecodePipeline{
		samples: make([]lidar.DecodedSample, lidar.SamplesPerPacket),
		points:  make([]lidar.Point3D, lidar.SamplesPerPacket),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports whether the pipeline has calibration attached.
func (p *DecodePipeline) State() State {
	if p.table.Load() == nil {
		return StateUninitialized
	}
	return StateReady
}

// FrameID returns the frame identifier used by HandlePacket.
func (p *DecodePipeline) FrameID() string { return p.frameID }

// Table returns the attached calibration, or nil while Uninitialized.
func (p *DecodePipeline) Table() *calibration.Table { return p.table.Load() }

// Attach moves the pipeline to Ready with the given table. Replacing the
// table of a Ready pipeline is not supported.
func (p *DecodePipeline) Attach(table *calibration.Table) error {
	if table == nil {
		return ErrNilTable
	}
	if !p.table.CompareAndSwap(nil, table) {
		return ErrAlreadyReady
	}
	return nil
}

// LoadCalibration loads path and attaches the result. On failure the
// pipeline stays Uninitialized and keeps producing empty batches.
func (p *DecodePipeline) LoadCalibration(path string, opts calibration.LoadOptions) error {
	table, err := calibration.LoadWithOptions(path, opts)
	if err != nil {
		lidar.Opsf("calibration load failed, decoding disabled: %v", err)
		return err
	}
	if err := p.Attach(table); err != nil {
		return err
	}
	lidar.Opsf("calibration %s attached, pipeline ready", path)
	return nil
}

// Process decodes one packet and projects it to points.
//
// While Uninitialized it returns an empty batch and no error. A malformed
// packet yields an empty batch and an error wrapping parse.ErrPacketSize,
// parse.ErrBankTag or parse.ErrSampleCount. The returned points alias the
// pipeline's buffer and are overwritten by the next call.
func (p *DecodePipeline) Process(packet []byte, stamp time.Time, frameID string) (lidar.PointBatch, error) {
	empty := lidar.PointBatch{Timestamp: stamp, FrameID: frameID}
	table := p.table.Load()
	if table == nil {
		return empty, nil
	}
	p.packets.Add(1)

	raw, err := parse.NewRawPacket(packet)
	if err != nil {
		p.rejected.Add(1)
		return empty, err
	}
	if err := parse.Decode(raw, table, p.samples); err != nil {
		p.rejected.Add(1)
		return empty, err
	}
	n := parse.ProjectAll(p.samples, p.points)

	batch := lidar.PointBatch{
		Points:    p.points[:n],
		Timestamp: stamp,
		FrameID:   frameID,
	}

	if p.stats != nil {
		p.stats.AddPoints(n)
	}
	if lidar.TraceEnabled() {
		lidar.Tracef("packet rev=%d frame=%s points=%d", raw.Revolution(), frameID, n)
	}

	var sinkErr error
	if p.sampleSink != nil {
		if err := p.sampleSink.HandleSamples(p.samples, stamp, frameID); err != nil {
			sinkErr = fmt.Errorf("sample sink: %w", err)
		}
	}
	if p.batchSink != nil {
		if err := p.batchSink.HandleBatch(batch); err != nil {
			sinkErr = errors.Join(sinkErr, fmt.Errorf("batch sink: %w", err))
		}
	}

	return batch, sinkErr
}

// HandlePacket adapts Process to the network listener, using the configured
// frame identifier.
func (p *DecodePipeline) HandlePacket(packet []byte, received time.Time) error {
	_, err := p.Process(packet, received, p.frameID)
	return err
}

// ProcessScan decodes a sequence of packets in order. Cancellation is checked
// between packets; a packet in progress always completes. Malformed packets
// are logged and dropped. It returns the number of packets decoded.
func (p *DecodePipeline) ProcessScan(ctx context.Context, scan []Packet, frameID string) (int, error) {
	if p.table.Load() == nil {
		return 0, nil
	}
	decoded := 0
	for i, pkt := range scan {
		if err := ctx.Err(); err != nil {
			return decoded, err
		}
		batch, err := p.Process(pkt.Data, pkt.Stamp, frameID)
		if err != nil {
			lidar.Opsf("scan packet %d of %d: %v", i+1, len(scan), err)
		}
		if !batch.Empty() {
			decoded++
		}
	}
	return decoded, nil
}

// Counters returns how many packets were offered while Ready and how many
// of those were rejected as malformed.
func (p *DecodePipeline) Counters() (packets, rejected uint64) {
	return p.packets.Load(), p.rejected.Load()
}
