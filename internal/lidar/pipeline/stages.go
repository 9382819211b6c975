package pipeline

import (
	"errors"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// BatchSink receives the Cartesian batch produced from each packet.
// The batch's points alias the pipeline buffer and are only valid for the
// duration of the call; sinks that retain data must copy it.
type BatchSink interface {
	HandleBatch(batch lidar.PointBatch) error
}

// SampleSink receives the calibrated polar samples of each packet, before
// projection. The slice aliases the pipeline buffer.
type SampleSink interface {
	HandleSamples(samples []lidar.DecodedSample, stamp time.Time, frameID string) error
}

// BatchSinkFunc adapts a function to BatchSink.
type BatchSinkFunc func(batch lidar.PointBatch) error

// HandleBatch calls f(batch).
func (f BatchSinkFunc) HandleBatch(batch lidar.PointBatch) error { return f(batch) }

// MultiBatchSink fans a batch out to several sinks. Every sink is called even
// if an earlier one fails; the errors are joined.
type MultiBatchSink []BatchSink

// HandleBatch forwards batch to each sink in order.
func (m MultiBatchSink) HandleBatch(batch lidar.PointBatch) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.HandleBatch(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
