package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

var (
	ErrNotFound       = errors.New("calibration file not found")
	ErrUnreadable     = errors.New("calibration file unreadable")
	ErrNoValidEntries = errors.New("calibration file has no valid entries")
	ErrIndexRange     = errors.New("laser index out of range")
)

// Reason classifies a LoadError.
type Reason int

const (
	NotFound Reason = iota + 1
	Unreadable
	NoValidEntries
	InvalidIndex
)

func (r Reason) String() string {
	switch r {
	case NotFound:
		return "NotFound"
	case Unreadable:
		return "Unreadable"
	case NoValidEntries:
		return "NoValidEntries"
	case InvalidIndex:
		return "InvalidIndex"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// LoadError reports why a calibration file could not be turned into a Table.
type LoadError struct {
	Reason Reason
	Path   string
	Line   int // set for InvalidIndex
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load calibration %s (%s) line %d: %v", e.Path, e.Reason, e.Line, e.Err)
	}
	return fmt.Sprintf("load calibration %s (%s): %v", e.Path, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's reason so callers can use errors.Is
// without caring whether the cause came from the OS or the parser.
func (e *LoadError) Is(target error) bool {
	switch e.Reason {
	case NotFound:
		return target == ErrNotFound
	case Unreadable:
		return target == ErrUnreadable
	case NoValidEntries:
		return target == ErrNoValidEntries
	case InvalidIndex:
		return target == ErrIndexRange
	}
	return false
}

// LoadOptions tunes how strict Load is.
type LoadOptions struct {
	// RequireEntries turns a file with zero valid lines into a NoValidEntries error.
	RequireEntries bool
}

// Summary counts what the parser did with each line.
type Summary struct {
	Lines    int
	Entries  int
	Comments int
	Markers  int
	Skipped  int
}

// Load reads an angles file with default options.
func Load(path string) (*Table, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads an angles file into a new Table.
func LoadWithOptions(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		reason := Unreadable
		if errors.Is(err, fs.ErrNotExist) {
			reason = NotFound
		}
		return nil, &LoadError{Reason: reason, Path: path, Err: err}
	}
	defer f.Close()

	table, summary, err := Parse(f)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Reason: Unreadable, Path: path, Err: err}
	}

	if summary.Entries == 0 && opts.RequireEntries {
		return nil, &LoadError{Reason: NoValidEntries, Path: path, Err: ErrNoValidEntries}
	}

	lidar.Diagf("calibration %s: %d entries, %d lasers populated, %d lines skipped",
		path, summary.Entries, table.Populated(), summary.Skipped)
	if summary.Entries == 0 {
		lidar.Opsf("calibration %s has no valid entries, all corrections are zero", path)
	}

	return table, nil
}

// MaxLineLength is the longest line Parse will read. Longer lines are
// skipped without aborting the parse.
const MaxLineLength = 4096

// Parse reads the angles format from r.
//
// Lines starting with '#' and the bare markers "upper" and "lower" are ignored.
// A data line is either
//
//	index rotational vertical c0 c1 c2 enabled
//	index rotational vertical c0 c1 c2 vert_corr horz_corr enabled
//
// with angles in degrees. The 7-field layout is read unless the line has a
// numeric eighth token and parses as the 9-field layout. Trailing tokens are
// ignored and any other line is skipped. Bank routing comes from the index
// alone; an index outside [0, NumLasers) fails the whole parse.
func Parse(r io.Reader) (*Table, Summary, error) {
	table := NewTable()
	var summary Summary

	reader := bufio.NewReaderSize(r, MaxLineLength)
	for {
		raw, isPrefix, err := reader.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, summary, err
		}
		summary.Lines++

		if isPrefix {
			for isPrefix && err == nil {
				_, isPrefix, err = reader.ReadLine()
			}
			if err != nil && err != io.EOF {
				return nil, summary, err
			}
			summary.Skipped++
			continue
		}
		line := strings.TrimRight(string(raw), "\r")

		switch {
		case strings.HasPrefix(line, "#"):
			summary.Comments++
			continue
		case line == "upper" || line == "lower":
			summary.Markers++
			continue
		}

		c, ok := parseLine(line)
		if !ok {
			summary.Skipped++
			continue
		}
		if err := table.Set(c); err != nil {
			return nil, summary, &LoadError{Reason: InvalidIndex, Line: summary.Lines, Err: err}
		}
		summary.Entries++
	}

	return table, summary, nil
}

func parseLine(line string) (LaserCorrection, bool) {
	fields := strings.Fields(line)
	if len(fields) >= 9 && isNumber(fields[7]) {
		if c, ok := parseFields(fields[:6], fields[6:8], fields[8]); ok {
			return c, true
		}
	}
	if len(fields) >= 7 {
		return parseFields(fields[:6], nil, fields[6])
	}
	return LaserCorrection{}, false
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 32)
	return err == nil
}

func parseFields(head, corr []string, enabledField string) (LaserCorrection, bool) {
	index, err := strconv.Atoi(head[0])
	if err != nil {
		return LaserCorrection{}, false
	}

	var vals [5]float32
	for i, f := range head[1:] {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return LaserCorrection{}, false
		}
		vals[i] = float32(v)
	}

	var vertCorr, horzCorr float32
	if corr != nil {
		v, err := strconv.ParseFloat(corr[0], 32)
		if err != nil {
			return LaserCorrection{}, false
		}
		h, err := strconv.ParseFloat(corr[1], 32)
		if err != nil {
			return LaserCorrection{}, false
		}
		vertCorr, horzCorr = float32(v), float32(h)
	}

	enabled, err := strconv.ParseFloat(enabledField, 32)
	if err != nil {
		return LaserCorrection{}, false
	}

	return LaserCorrection{
		LaserIndex:       index,
		RotationalOffset: lidar.DegreesToRadians(vals[0]),
		VerticalAngle:    lidar.DegreesToRadians(vals[1]),
		DistanceCoeff:    [3]float32{vals[2], vals[3], vals[4]},
		HorizontalOffset: horzCorr,
		VerticalOffset:   vertCorr,
		Enabled:          enabled != 0,
	}, true
}
