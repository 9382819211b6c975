package parse

import (
	"encoding/binary"
)

// BlockSpec describes one data block for Encode.
type BlockSpec struct {
	BankTag   uint16
	Rotation  uint16 // 0.01° units
	Ranges    [RETURNS_PER_BLOCK]uint16
	Intensity [RETURNS_PER_BLOCK]uint8
}

// PacketSpec describes a whole payload for Encode.
type PacketSpec struct {
	Blocks     [BLOCKS_PER_PACKET]BlockSpec
	Revolution uint16
	Status     [STATUS_SIZE]byte
}

// Encode writes spec in the sensor's wire layout. It is the inverse of the
// RawPacket accessors and synthesises packets for tests.
func Encode(spec PacketSpec) []byte {
	buf := make([]byte, PACKET_SIZE)
	for b, blk := range spec.Blocks {
		off := blockOffset(b)
		binary.LittleEndian.PutUint16(buf[off:], blk.BankTag)
		binary.LittleEndian.PutUint16(buf[off+BANK_TAG_SIZE:], blk.Rotation)
		data := off + BANK_TAG_SIZE + ROTATION_SIZE
		for s := 0; s < RETURNS_PER_BLOCK; s++ {
			binary.LittleEndian.PutUint16(buf[data+s*BYTES_PER_RETURN:], blk.Ranges[s])
			buf[data+s*BYTES_PER_RETURN+2] = blk.Intensity[s]
		}
	}
	binary.LittleEndian.PutUint16(buf[REVOLUTION_OFFSET:], spec.Revolution)
	copy(buf[STATUS_OFFSET:], spec.Status[:])
	return buf
}

// UniformSpec builds a packet whose blocks alternate lower/upper banks, as the
// HDL-64E does, with every return set to the same range and intensity.
// Rotation advances by step units per lower/upper pair.
func UniformSpec(startRotation, step uint16, rangeUnits uint16, intensity uint8, revolution uint16) PacketSpec {
	var spec PacketSpec
	spec.Revolution = revolution
	for b := 0; b < BLOCKS_PER_PACKET; b++ {
		blk := &spec.Blocks[b]
		if b%2 == 0 {
			blk.BankTag = UPPER_BANK
		} else {
			blk.BankTag = LOWER_BANK
		}
		blk.Rotation = uint16((uint32(startRotation) + uint32(b/2)*uint32(step)) % ROTATION_MAX_UNITS)
		for s := 0; s < RETURNS_PER_BLOCK; s++ {
			blk.Ranges[s] = rangeUnits
			blk.Intensity[s] = intensity
		}
	}
	return spec
}
