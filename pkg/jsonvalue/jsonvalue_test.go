package jsonvalue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	got, err := Decode([]byte(`{"frame": 12, "ratio": 1.5, "list": [1, "a", {"n": 2}], "big": 1e3}`))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"frame": 12,
		"ratio": 1.5,
		"list":  []any{1, "a", map[string]any{"n": 2}},
		"big":   1000.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if v, err := Decode([]byte("  ")); err != nil || v != nil {
		t.Errorf("blank input = %v, %v", v, err)
	}
	if _, err := Decode([]byte("{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestDecodeMap(t *testing.T) {
	m, err := DecodeMap([]byte("null"))
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("null = %#v", m)
	}
}

func TestCopy(t *testing.T) {
	src := map[string]any{"pools": []string{"gpu"}, "priority": 50}
	got, err := Copy(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"pools": []any{"gpu"}, "priority": 50}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	got.(map[string]any)["priority"] = 1
	if src["priority"] != 50 {
		t.Error("copy shares state with the source")
	}
	if _, err := Copy(make(chan int)); err == nil {
		t.Error("expected error for a non-serializable value")
	}
}
