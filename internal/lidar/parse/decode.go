package parse

import (
	"fmt"

	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
)

// bankOf maps a block header to its calibration bank.
func bankOf(tag uint16) (calibration.Bank, bool) {
	switch tag {
	case LOWER_BANK:
		return calibration.BankLower, true
	case UPPER_BANK:
		return calibration.BankUpper, true
	}
	return calibration.BankLower, false
}

// ValidateBanks checks every block header before any output is written, so a
// rejected packet leaves the caller's buffer untouched.
func ValidateBanks(packet RawPacket) error {
	for b := 0; b < BLOCKS_PER_PACKET; b++ {
		if _, ok := bankOf(packet.BankTag(b)); !ok {
			return fmt.Errorf("%w: block %d has 0x%04X", ErrBankTag, b, packet.BankTag(b))
		}
	}
	return nil
}

// Decode unpacks one packet into out, which must hold exactly SamplesPerPacket
// entries. Samples are written block-major, slot-minor.
//
// A wrongly sized out slice is a programming error and panics. Packet-level
// problems are returned as errors.
func Decode(packet RawPacket, table *calibration.Table, out []lidar.DecodedSample) error {
	if len(out) != lidar.SamplesPerPacket {
		panic(fmt.Sprintf("parse.Decode: output holds %d samples, want %d", len(out), lidar.SamplesPerPacket))
	}
	if err := ValidateBanks(packet); err != nil {
		return err
	}

	revolution := packet.Revolution()
	index := 0

	for b := 0; b < BLOCKS_PER_PACKET; b++ {
		bank, _ := bankOf(packet.BankTag(b))
		corrections := table.Bank(bank)
		origin := bank.Origin()

		rotation := lidar.DegreesToRadians(float32(packet.Rotation(b)) * ROTATION_RESOLUTION)

		for slot := 0; slot < RETURNS_PER_BLOCK; slot++ {
			c := &corrections[slot]
			rawRange, intensity := packet.Return(b, slot)

			// The sensor spins clockwise, opposite to the mathematical
			// convention, hence the negation.
			out[index] = lidar.DecodedSample{
				LaserIndex: origin + slot,
				Heading:    lidar.NormalizeAngle(-(rotation - c.RotationalOffset)),
				Pitch:      c.VerticalAngle,
				Range:      c.CorrectRange(float32(rawRange) * DISTANCE_RESOLUTION),
				Intensity:  intensity,
				Revolution: revolution,
			}
			index++
		}
	}

	if index != lidar.SamplesPerPacket {
		return fmt.Errorf("%w: wrote %d, want %d", ErrSampleCount, index, lidar.SamplesPerPacket)
	}
	return nil
}
