package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "angles.config")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write calibration file: %v", err)
	}
	return path
}

func near(a float32, b float64) bool {
	return scalar.EqualWithinAbs(float64(a), b, 1e-5)
}

func TestLoad_SevenFieldLine(t *testing.T) {
	path := writeFile(t, "5 10.0 -2.0 0.1 0.2 0.3 1\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	c, ok := table.Laser(5)
	if !ok {
		t.Fatal("laser 5 missing")
	}
	if c.LaserIndex != 5 {
		t.Errorf("LaserIndex = %d, want 5", c.LaserIndex)
	}
	if !near(c.RotationalOffset, 0.174533) {
		t.Errorf("RotationalOffset = %v, want ≈0.1745", c.RotationalOffset)
	}
	if !near(c.VerticalAngle, -0.0349066) {
		t.Errorf("VerticalAngle = %v, want ≈-0.0349", c.VerticalAngle)
	}
	want := [3]float32{0.1, 0.2, 0.3}
	if c.DistanceCoeff != want {
		t.Errorf("DistanceCoeff = %v, want %v", c.DistanceCoeff, want)
	}
	if !c.Enabled {
		t.Error("Enabled = false, want true")
	}
	if c.HorizontalOffset != 0 || c.VerticalOffset != 0 {
		t.Errorf("7-field line set fine offsets: %+v", c)
	}
}

func TestLoad_NineFieldLine(t *testing.T) {
	path := writeFile(t, "12 -4.5 3.25 0 1 0.05 0.75 -0.5 0\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, _ := table.Laser(12)
	if !near(c.VerticalOffset, 0.75) || !near(c.HorizontalOffset, -0.5) {
		t.Errorf("fine offsets = (vert %v, horz %v), want (0.75, -0.5)", c.VerticalOffset, c.HorizontalOffset)
	}
	if c.Enabled {
		t.Error("Enabled = true, want false")
	}
	if !near(c.RotationalOffset, -4.5*3.14159265/180) {
		t.Errorf("RotationalOffset = %v", c.RotationalOffset)
	}
}

func TestLoad_UpperBankRoutedByIndex(t *testing.T) {
	// The "lower" marker is cosmetic; index 40 still lands in the upper bank.
	path := writeFile(t, "lower\n40 1.0 2.0 0 1 0 1\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	upper := table.Bank(BankUpper)
	if upper[8].LaserIndex != 40 || !near(upper[8].VerticalAngle, 2*3.14159265/180) {
		t.Errorf("upper[8] = %+v, want laser 40", upper[8])
	}
	lower := table.Bank(BankLower)
	if lower[8].DistanceCoeff != ([3]float32{}) {
		t.Errorf("lower[8] was written: %+v", lower[8])
	}
}

func TestLoad_SkipsCommentsMarkersAndMalformedLines(t *testing.T) {
	content := strings.Join([]string{
		"# HDL-64E angles",
		"upper",
		"not a calibration line",
		"33 1 2 3",           // too few fields
		"34 a 2 0 1 0 1",     // non-numeric
		"35 1 2 0 x 0 1 0 1", // non-numeric in both layouts
		"lower",
		"0 -5.0 -7.5 0 1 0 1\r",
		"",
		"63 5.0 2.0 0 1 0 1",
	}, "\n")
	path := writeFile(t, content)

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := table.Populated(); got != 2 {
		t.Errorf("Populated() = %d, want 2", got)
	}
	c0, _ := table.Laser(0)
	if !near(c0.VerticalAngle, -7.5*3.14159265/180) {
		t.Errorf("laser 0 vertical = %v", c0.VerticalAngle)
	}
	c63, _ := table.Laser(63)
	if !near(c63.RotationalOffset, 5*3.14159265/180) {
		t.Errorf("laser 63 rotational = %v", c63.RotationalOffset)
	}
}

func TestLoad_LenientFieldForms(t *testing.T) {
	content := strings.Join([]string{
		"5 10.0 -2.0 0.1 0.2 0.3 1.0",   // float-formatted enabled
		"6 1 2 0 1 0 1 # trailing note", // trailing words after 7 fields
		"7 1 2 0 1 0 0 0.5",             // 8 tokens read as 7
		"8 1 2 0 1 0 0.25 -0.5 1 extra", // 9 fields plus trailing token
	}, "\n")
	table, err := Load(writeFile(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := table.Populated(); got != 4 {
		t.Fatalf("Populated() = %d, want 4", got)
	}

	c5, _ := table.Laser(5)
	if !c5.Enabled {
		t.Error("laser 5 Enabled = false, want true")
	}
	c6, _ := table.Laser(6)
	if !c6.Enabled || c6.VerticalOffset != 0 {
		t.Errorf("laser 6 = %+v", c6)
	}
	c7, _ := table.Laser(7)
	if c7.Enabled || c7.VerticalOffset != 0 {
		t.Errorf("laser 7 = %+v, want 7-field read with enabled false", c7)
	}
	c8, _ := table.Laser(8)
	if !c8.Enabled || !near(c8.VerticalOffset, 0.25) || !near(c8.HorizontalOffset, -0.5) {
		t.Errorf("laser 8 = %+v, want 9-field read", c8)
	}
}

func TestLoad_OverlongLineIsSkipped(t *testing.T) {
	content := "#" + strings.Repeat("x", 70000) + "\n" +
		strings.Repeat("9", MaxLineLength*2) + "\n" +
		"5 10.0 -2.0 0.1 0.2 0.3 1\n"

	table, err := Load(writeFile(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, _ := table.Laser(5)
	if !near(c.RotationalOffset, 0.174533) {
		t.Errorf("laser 5 RotationalOffset = %v, want ≈0.1745", c.RotationalOffset)
	}
	if got := table.Populated(); got != 1 {
		t.Errorf("Populated() = %d, want 1", got)
	}

	_, summary, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Summary{Lines: 3, Entries: 1, Skipped: 2}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_OverlongFinalLineWithoutNewline(t *testing.T) {
	input := "1 0 0 0 1 0 1\n" + strings.Repeat("y", MaxLineLength+10)
	table, summary, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.Entries != 1 || summary.Skipped != 1 || summary.Lines != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if got := table.Populated(); got != 1 {
		t.Errorf("Populated() = %d, want 1", got)
	}
}

func TestParse_Summary(t *testing.T) {
	input := "# c\nupper\n1 0 0 0 1 0 1\ngarbage\nlower\n"
	_, summary, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Summary{Lines: 5, Entries: 1, Comments: 1, Markers: 2, Skipped: 1}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "# nothing here\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Populated() != 0 {
		t.Errorf("Populated() = %d, want 0", table.Populated())
	}
	for i := 0; i < lidar.NumLasers; i++ {
		c, _ := table.Laser(i)
		if c.LaserIndex != i || c.DistanceCoeff != ([3]float32{}) {
			t.Fatalf("laser %d not default: %+v", i, c)
		}
	}
}

func TestLoadWithOptions_RequireEntries(t *testing.T) {
	path := writeFile(t, "# nothing here\n")

	_, err := LoadWithOptions(path, LoadOptions{RequireEntries: true})
	if !errors.Is(err, ErrNoValidEntries) {
		t.Fatalf("error = %v, want ErrNoValidEntries", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Reason != NoValidEntries {
		t.Fatalf("error = %#v, want LoadError{NoValidEntries}", err)
	}
}

func TestLoad_OutOfRangeIndexIsRejected(t *testing.T) {
	for _, line := range []string{"64 0 0 0 1 0 1", "-1 0 0 0 1 0 1"} {
		path := writeFile(t, "0 0 0 0 1 0 1\n"+line+"\n")

		_, err := Load(path)
		if !errors.Is(err, ErrIndexRange) {
			t.Fatalf("%q: error = %v, want ErrIndexRange", line, err)
		}
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("%q: error is not a LoadError", line)
		}
		if le.Line != 2 || le.Path != path {
			t.Errorf("%q: LoadError = %+v, want line 2 of %s", line, le, path)
		}
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.config"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Reason != NotFound {
		t.Fatalf("error = %#v, want Reason NotFound", err)
	}
}

func TestLoad_Unreadable(t *testing.T) {
	// A directory opens but cannot be scanned as text.
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("directory: error = %v, want ErrUnreadable", err)
	}

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		return
	}
	path := writeFile(t, "1 0 0 0 1 0 1\n")
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	_, err = Load(path)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("no permission: error = %v, want ErrUnreadable", err)
	}
}

func TestLoad_ShippedAnglesFile(t *testing.T) {
	table, err := LoadWithOptions("../../../config/angles.config", LoadOptions{RequireEntries: true})
	if err != nil {
		t.Fatalf("Load shipped calibration: %v", err)
	}
	if missing := table.Missing(); len(missing) != 0 {
		t.Errorf("shipped calibration misses lasers %v", missing)
	}
}
