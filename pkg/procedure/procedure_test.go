package procedure

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuiltinProcedures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sum", []string{"1", "2", "3"}, "6"},
		{"sub", []string{"10", "4"}, "6"},
		{"mult", []string{"2", "2.5"}, "5"},
		{"div", []string{"10", "4"}, "2.5"},
		{"min", []string{"3", "-1", "2"}, "-1"},
		{"max", []string{"3", "-1", "2"}, "3"},
		{"round", []string{"2.6"}, "3"},
		{"round", []string{"2.456", "2"}, "2.46"},
		{"even", []string{"4"}, "true"},
		{"odd", []string{"4"}, "false"},
		{"slice", []string{"plate_v001", "0", "5"}, "plate"},
		{"slice", []string{"plate_v001", "-4"}, "v001"},
		{"repeat", []string{"ab", "3"}, "ababab"},
		{"upper", []string{"exr"}, "EXR"},
		{"lower", []string{"EXR"}, "exr"},
		{"concat", []string{"a", "b", "c"}, "abc"},
		{"capitalize", []string{"demo"}, "Demo"},
		{"fallback", []string{"", "", "x"}, "x"},
		{"replace", []string{"a_b_c", "_", "-"}, "a-b-c"},
		{"remove", []string{"a_b_c", "_"}, "abc"},
		{"match", []string{"plate_v001", `v\d+$`}, "true"},
		{"len", []string{"héllo"}, "5"},
		{"undefined", []string{""}, "true"},
		{"defined", []string{""}, "false"},
		{"equal", []string{"a", "a"}, "true"},
		{"different", []string{"a", "a"}, "false"},
		{"splitpart", []string{"a.b.c", ".", "1"}, "b"},
		{"splitpart", []string{"a.b.c", ".", "-1"}, "c"},
		{"camelcasetospaced", []string{"shotNameLong"}, "Shot Name Long"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+strings.Join(tt.args, ","), func(t *testing.T) {
			got, err := Run(tt.name, tt.args...)
			if err != nil {
				t.Fatalf("Run(%s): %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("Run(%s, %v) = %q, want %q", tt.name, tt.args, got, tt.want)
			}
		})
	}
}

func TestDateProceduresUseClock(t *testing.T) {
	restore := SetClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	defer restore()

	want := map[string]string{
		"yyyy": "2024", "yy": "24", "mm": "01", "dd": "02",
		"hour": "03", "minute": "04", "second": "05",
	}
	for name, w := range want {
		got, err := Run(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("%s = %q, want %q", name, got, w)
		}
	}
}

func TestArithmeticErrors(t *testing.T) {
	if _, err := Run("div", "1", "0"); err == nil {
		t.Error("expected division by zero error")
	}
	if _, err := Run("sum", "one"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Run("nosuch"); err == nil {
		t.Error("expected unknown procedure error")
	}
}

func TestSystemProcedures(t *testing.T) {
	t.Setenv(UserEnv, "artist")
	if got, _ := Run("user"); got != "artist" {
		t.Errorf("user = %q", got)
	}

	t.Setenv("KOMBI_TEST_VALUE", "42")
	if got, _ := Run("env", "KOMBI_TEST_VALUE"); got != "42" {
		t.Errorf("env = %q", got)
	}

	base := t.TempDir()
	t.Setenv(TempDirEnv, base)
	dir, err := Run("tmpdir")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dir, base) {
		t.Errorf("tmpdir %q not under %q", dir, base)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("tmpdir did not create a directory: %v", err)
	}
	file, err := Run("tmp", "exr")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(file) != ".exr" {
		t.Errorf("tmp extension = %q", filepath.Ext(file))
	}

	got, err := Run("rand", "3", "3")
	if err != nil || got != "3" {
		t.Errorf("rand 3 3 = %q, %v", got, err)
	}
}

func TestVersionProcedures(t *testing.T) {
	dir := t.TempDir()
	if got, _ := Run("newver", dir); got != "v001" {
		t.Errorf("newver on empty dir = %q", got)
	}
	for _, name := range []string{"v001", "v007", "notes"} {
		os.Mkdir(filepath.Join(dir, name), 0755)
	}
	if got, _ := Run("latestver", dir); got != "v007" {
		t.Errorf("latestver = %q", got)
	}
	if got, _ := Run("newver", dir); got != "v008" {
		t.Errorf("newver = %q", got)
	}
}

func TestRegisterAndNames(t *testing.T) {
	Register("testonly", func(args ...string) (any, error) { return len(args), nil })
	found := false
	for _, n := range Names() {
		if n == "testonly" {
			found = true
		}
	}
	if !found {
		t.Error("registered procedure missing from Names()")
	}
	if got, _ := Run("testonly", "a", "b"); got != "2" {
		t.Errorf("testonly = %q", got)
	}
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"True", true},
		{" 1 ", true},
		{"yes", false},
		{"0", false},
		{2, true},
		{0, false},
		{0.5, true},
		{nil, false},
	}
	for _, tt := range tests {
		if got := ToBool(tt.in); got != tt.want {
			t.Errorf("ToBool(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
