package parse

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

/*
HDL-64E LiDAR Packet Layout

The sensor sends 1206-byte UDP payloads. Each payload carries 12 data blocks;
a block reports one laser bank (32 lasers) at one rotational position.

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte bank tag + 2-byte rotation + 32 returns × 3 bytes (range + intensity)
├── Revolution (2 bytes) - rotation counter, +1 per revolution (mod 65536)
└── Status (4 bytes) - status type and value, passed through untouched

All multi-byte fields are little-endian. The bank tag reads 0xEEFF for the
upper bank and 0xDDFF for the lower bank. Rotation is in 0.01° units, range in
2 mm units.

Fields are read by value from the byte slice at fixed offsets; nothing is
overlaid onto the buffer.
*/

const (
	PACKET_SIZE       = 1206                                            // UDP payload size in bytes
	BLOCKS_PER_PACKET = lidar.BlocksPerPacket                           // 12 data blocks
	RETURNS_PER_BLOCK = lidar.ReturnsPerBlock                           // 32 lasers per block
	BYTES_PER_RETURN  = 3                                               // 2 bytes range + 1 byte intensity
	BANK_TAG_SIZE     = 2                                               // block header
	ROTATION_SIZE     = 2                                               // block rotation field
	BLOCK_DATA_SIZE   = RETURNS_PER_BLOCK * BYTES_PER_RETURN            // 96 bytes
	BLOCK_SIZE        = BANK_TAG_SIZE + ROTATION_SIZE + BLOCK_DATA_SIZE // 100 bytes
	REVOLUTION_OFFSET = BLOCKS_PER_PACKET * BLOCK_SIZE                  // 1200
	REVOLUTION_SIZE   = 2
	STATUS_OFFSET     = REVOLUTION_OFFSET + REVOLUTION_SIZE // 1202
	STATUS_SIZE       = 4

	UPPER_BANK = 0xEEFF // bytes FF EE on the wire
	LOWER_BANK = 0xDDFF // bytes FF DD on the wire

	ROTATION_RESOLUTION = 0.01  // degrees per rotation unit
	ROTATION_MAX_UNITS  = 36000 // 360.00 degrees
	DISTANCE_RESOLUTION = 0.002 // meters per range unit
)

var (
	ErrPacketSize  = errors.New("invalid packet size")
	ErrBankTag     = errors.New("invalid bank tag")
	ErrSampleCount = errors.New("decoded sample count mismatch")
)

// RawPacket is a bounds-checked read-only view over one HDL-64E payload.
// It borrows the byte slice; the caller must not modify it while decoding.
type RawPacket struct {
	data []byte
}

// NewRawPacket validates the payload length and wraps it.
func NewRawPacket(data []byte) (RawPacket, error) {
	if len(data) != PACKET_SIZE {
		return RawPacket{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrPacketSize, PACKET_SIZE, len(data))
	}
	return RawPacket{data: data}, nil
}

// Bytes returns the underlying payload.
func (p RawPacket) Bytes() []byte { return p.data }

func blockOffset(block int) int { return block * BLOCK_SIZE }

// BankTag returns the raw header word of a block.
func (p RawPacket) BankTag(block int) uint16 {
	off := blockOffset(block)
	return binary.LittleEndian.Uint16(p.data[off : off+BANK_TAG_SIZE])
}

// Rotation returns the raw rotational position of a block in 0.01° units.
func (p RawPacket) Rotation(block int) uint16 {
	off := blockOffset(block) + BANK_TAG_SIZE
	return binary.LittleEndian.Uint16(p.data[off : off+ROTATION_SIZE])
}

// Return returns the raw range (2 mm units) and intensity of one laser slot.
func (p RawPacket) Return(block, slot int) (uint16, uint8) {
	off := blockOffset(block) + BANK_TAG_SIZE + ROTATION_SIZE + slot*BYTES_PER_RETURN
	return binary.LittleEndian.Uint16(p.data[off : off+2]), p.data[off+2]
}

// Revolution returns the packet's rotation counter.
func (p RawPacket) Revolution() uint16 {
	return binary.LittleEndian.Uint16(p.data[REVOLUTION_OFFSET : REVOLUTION_OFFSET+REVOLUTION_SIZE])
}

// Status returns the trailing status bytes.
func (p RawPacket) Status() [STATUS_SIZE]byte {
	var s [STATUS_SIZE]byte
	copy(s[:], p.data[STATUS_OFFSET:STATUS_OFFSET+STATUS_SIZE])
	return s
}
