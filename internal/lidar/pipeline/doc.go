// Package pipeline turns raw HDL-64E packets into calibrated point batches.
//
// A DecodePipeline owns the reusable sample and point buffers for one
// sensor and references a read-only calibration table. It starts
// Uninitialized, where every packet is ignored, and becomes Ready once a
// table is attached. Decoded output is returned to the caller and, when
// configured, pushed to injected sinks (persistence, status page).
//
// The pipeline does not own transport or storage; it is driven by the
// network listener and writes to whatever sinks the composition root wires in.
package pipeline
