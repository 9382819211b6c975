// Package calibration holds the per-laser correction table of an HDL-64E
// and the loader for its text angles file.
package calibration

import (
	"fmt"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// Bank identifies one of the two physical laser groups.
type Bank int

const (
	BankLower Bank = iota // lasers [0, BankSize)
	BankUpper             // lasers [BankSize, NumLasers)
)

func (b Bank) String() string {
	switch b {
	case BankLower:
		return "lower"
	case BankUpper:
		return "upper"
	default:
		return fmt.Sprintf("Bank(%d)", int(b))
	}
}

// Origin returns the laser index of the bank's first slot.
func (b Bank) Origin() int {
	if b == BankUpper {
		return lidar.BankSize
	}
	return 0
}

// LaserCorrection is the calibration record of one laser.
// Angles are stored in radians.
type LaserCorrection struct {
	LaserIndex       int
	RotationalOffset float32
	VerticalAngle    float32
	// DistanceCoeff holds (c0, c1, c2) of range' = c0·range² + c1·range + c2.
	DistanceCoeff    [3]float32
	HorizontalOffset float32
	VerticalOffset   float32
	// Enabled is carried through from the file but not consulted when decoding.
	Enabled          bool
}

// CorrectRange applies the quadratic distance correction to a range in meters.
func (c *LaserCorrection) CorrectRange(r float32) float32 {
	return c.DistanceCoeff[0]*r*r + c.DistanceCoeff[1]*r + c.DistanceCoeff[2]
}

// Table is the full set of corrections, partitioned into lower and upper banks.
// A Table is immutable once loaded and safe to share between decoders.
type Table struct {
	lower   [lidar.BankSize]LaserCorrection
	upper   [lidar.BankSize]LaserCorrection
	written [lidar.NumLasers]bool
}

// NewTable returns a table whose every entry carries its own laser index and
// otherwise zero-valued corrections.
func NewTable() *Table {
	t := &Table{}
	for i := 0; i < lidar.BankSize; i++ {
		t.lower[i].LaserIndex = i
		t.upper[i].LaserIndex = i + lidar.BankSize
	}
	return t
}

// BankOf returns the bank and local slot a laser index routes to.
func BankOf(index int) (Bank, int, error) {
	if index < 0 || index >= lidar.NumLasers {
		return BankLower, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexRange, index, lidar.NumLasers)
	}
	if index < lidar.BankSize {
		return BankLower, index, nil
	}
	return BankUpper, index - lidar.BankSize, nil
}

// Set stores a correction at the slot derived from its LaserIndex.
func (t *Table) Set(c LaserCorrection) error {
	bank, slot, err := BankOf(c.LaserIndex)
	if err != nil {
		return err
	}
	if bank == BankLower {
		t.lower[slot] = c
	} else {
		t.upper[slot] = c
	}
	t.written[c.LaserIndex] = true
	return nil
}

// Bank returns the corrections of one bank, indexed by slot.
func (t *Table) Bank(b Bank) *[lidar.BankSize]LaserCorrection {
	if b == BankUpper {
		return &t.upper
	}
	return &t.lower
}

// Laser returns the correction for a global laser index.
func (t *Table) Laser(index int) (LaserCorrection, bool) {
	bank, slot, err := BankOf(index)
	if err != nil {
		return LaserCorrection{}, false
	}
	return t.Bank(bank)[slot], true
}

// Len is always NumLasers.
func (t *Table) Len() int { return lidar.NumLasers }

// Populated returns how many laser indices were written by a loader.
func (t *Table) Populated() int {
	n := 0
	for _, w := range t.written {
		if w {
			n++
		}
	}
	return n
}

// Missing lists the laser indices never written by a loader.
func (t *Table) Missing() []int {
	var missing []int
	for i, w := range t.written {
		if !w {
			missing = append(missing, i)
		}
	}
	return missing
}
