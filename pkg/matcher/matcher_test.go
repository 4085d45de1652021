package matcher

import (
	"testing"

	"github.com/ormasoftchile/kombi/pkg/element"
)

func init() {
	never := func(any, *element.Element) (bool, error) { return false, nil }
	element.MustRegister(&element.Type{Name: "image", Base: element.TypeFile, Leaf: true, Test: never}, false)
	element.MustRegister(&element.Type{Name: "exr", Base: "image", Leaf: true, Test: never}, false)
	element.MustRegister(&element.Type{Name: "png", Base: "image", Leaf: true, Test: never}, false)
}

func newElement(t *testing.T, typeName, path string, vars map[string]any) *element.Element {
	t.Helper()
	e, err := element.New(typeName, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range vars {
		if err := e.SetVar(k, v, false); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func TestTypeScopedRule(t *testing.T) {
	m := New([]string{"image"}, map[string]any{"exr=width": "1920"})

	tests := []struct {
		name string
		e    *element.Element
		want bool
	}{
		{"exr 1920", newElement(t, "exr", "/a/hd.exr", map[string]any{"width": 1920}), true},
		{"exr 1280", newElement(t, "exr", "/a/sd.exr", map[string]any{"width": 1280}), false},
		{"png without rule", newElement(t, "png", "/a/sd.png", map[string]any{"width": 1280}), true},
		{"plain image", newElement(t, "image", "/a/img", nil), true},
		{"file is not an image", newElement(t, element.TypeFile, "/a/notes.txt", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.e); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmptyTypesMatchesOnRulesOnly(t *testing.T) {
	m := New(nil, map[string]any{
		"ext":  []any{"exr", "png"},
		"name": "plate_*",
	})
	if !m.Match(newElement(t, element.TypeFile, "/a/plate_v001.exr", nil)) {
		t.Error("expected match on ext and name")
	}
	if m.Match(newElement(t, element.TypeFile, "/a/plate_v001.jpg", nil)) {
		t.Error("jpg should not match the ext rule")
	}
	if m.Match(newElement(t, element.TypeFile, "/a/beauty.exr", nil)) {
		t.Error("name rule should reject beauty.exr")
	}
	if !New(nil, nil).Match(newElement(t, element.TypeDirectory, "/a", nil)) {
		t.Error("empty matcher should accept everything")
	}
}

func TestMissingVariable(t *testing.T) {
	e := newElement(t, element.TypeFile, "/a/b.txt", nil)
	if New(nil, map[string]any{"shot": "sh*"}).Match(e) {
		t.Error("missing variable matched a non-wildcard pattern")
	}
	if !New(nil, map[string]any{"shot": "*"}).Match(e) {
		t.Error("missing variable should match *")
	}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*.exr", "/mnt/a/b.exr", true},
		{"plate_v00?", "plate_v001", true},
		{"plate_v00?", "plate_v0010", false},
		{"[abc]*", "beauty", true},
		{"[!abc]*", "beauty", false},
		{"v[0-9][0-9]", "v12", true},
		{"a.b", "axb", false},
		{"café*", "café_01", true},
		{"[unclosed", "[unclosed", true},
		{"[unclosed", "u", false},
		{"[z-a]*", "zebra", false},
		{"[z-a]*", "", false},
		{"[!z-a]*", "zebra", true},
		{"[z-ax]*", "xray", true},
		{"[z-ax]*", "zebra", false},
		{"[]a]*", "]x", true},
		{"[a-]", "-", true},
		{"[^a]", "^", true},
		{`[\\]`, `\`, true},
	}
	for _, tt := range tests {
		if got := Glob(tt.pattern, tt.value); got != tt.want {
			t.Errorf("Glob(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestMatchReversedRange(t *testing.T) {
	e := newElement(t, element.TypeFile, "/a/zebra.exr", nil)
	if New(nil, map[string]any{"name": "[z-a]*"}).Match(e) {
		t.Error("reversed range matched")
	}
	if !New(nil, map[string]any{"name": []any{"[z-a]*", "zeb*"}}).Match(e) {
		t.Error("alternative after a reversed range did not match")
	}
}
