package element

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func init() {
	MustRegister(&Type{
		Name: "testImage",
		Base: TypeFile,
		Leaf: true,
		Test: func(data any, _ *Element) (bool, error) {
			return strings.HasSuffix(pathOf(data), ".timg"), nil
		},
	}, false)
	MustRegister(&Type{
		Name: "testExr",
		Base: "testImage",
		Leaf: true,
		Test: func(data any, _ *Element) (bool, error) {
			return strings.HasSuffix(pathOf(data), ".exr.timg"), nil
		},
	}, false)
	MustRegister(&Type{
		Name: "testBroken",
		Leaf: true,
		Test: func(data any, _ *Element) (bool, error) {
			if pathOf(data) == "/broken" {
				return false, errors.New("boom")
			}
			return false, nil
		},
	}, false)
}

func TestCreatePicksLatestAcceptingType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/shots/a/plate.exr.timg", "testExr"},
		{"/shots/a/plate.timg", "testImage"},
		{"/shots/a/notes.txt", TypeFile},
	}
	for _, tt := range tests {
		e, err := CreateFromPath(tt.path)
		if err != nil {
			t.Fatalf("CreateFromPath(%q): %v", tt.path, err)
		}
		if e.Type() != tt.want {
			t.Errorf("type of %q = %q, want %q", tt.path, e.Type(), tt.want)
		}
		if e.FullPath() != tt.path {
			t.Errorf("fullPath = %q", e.FullPath())
		}
		if e.Name() != filepath.Base(tt.path) {
			t.Errorf("name = %q", e.Name())
		}
	}
}

func TestCreateDirectory(t *testing.T) {
	dir := t.TempDir()
	e, err := CreateFromPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if e.Type() != TypeDirectory || e.IsLeaf() {
		t.Errorf("type = %q leaf = %v", e.Type(), e.IsLeaf())
	}
	if label, _ := e.Tag(TagLabel); label != e.Name() {
		t.Errorf("label = %v", label)
	}
	if _, ok := e.LookupTag(TagIcon); !ok {
		t.Error("icon tag missing")
	}
}

func TestCreateWrapsTestFailure(t *testing.T) {
	_, err := CreateFromPath("/broken")
	if !errors.Is(err, ErrTypeTest) {
		t.Fatalf("expected ErrTypeTest, got %v", err)
	}
	if !strings.Contains(err.Error(), "testBroken") || !strings.Contains(err.Error(), "/broken") {
		t.Errorf("error %q does not identify type and input", err)
	}
}

func TestRegisterKeepsFirstUnlessOverridden(t *testing.T) {
	first := &Type{Name: "testDup", Leaf: true}
	second := &Type{Name: "testDup", Leaf: false}
	if err := Register(first, false); err != nil {
		t.Fatal(err)
	}
	if err := Register(second, false); err != nil {
		t.Fatal(err)
	}
	if got, _ := RegisteredType("testDup"); got != first {
		t.Error("re-registration without override replaced the type")
	}
	if err := Register(second, true); err != nil {
		t.Fatal(err)
	}
	if got, _ := RegisteredType("testDup"); got != second {
		t.Error("override did not replace the type")
	}
	names := RegisteredNames()
	if names[len(names)-1] != "testDup" {
		t.Errorf("override did not move type last: %v", names)
	}

	if err := Register(&Type{Name: "testOrphan", Base: "nosuchbase"}, false); !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound for unknown base, got %v", err)
	}
}

func TestSubTypes(t *testing.T) {
	if !IsSubType("testExr", "testImage") || !IsSubType("testExr", TypeFs) {
		t.Error("testExr should inherit from testImage and fs")
	}
	if IsSubType("testImage", "testExr") {
		t.Error("testImage is not a testExr")
	}
	subs := RegisteredSubTypes("testImage")
	if diff := cmp.Diff([]string{"testImage", "testExr"}, subs); diff != "" {
		t.Errorf("RegisteredSubTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestVarsAndTags(t *testing.T) {
	e, err := CreateFromPath("/shots/a/plate.timg")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetVar("shot", "a", true); err != nil {
		t.Fatal(err)
	}
	if err := e.SetVar("width", 1920, false); err != nil {
		t.Fatal(err)
	}
	if err := e.SetVar("bad", e, false); !errors.Is(err, ErrInvalidVar) {
		t.Errorf("expected ErrInvalidVar for element value, got %v", err)
	}
	if _, err := e.Var("missing"); !errors.Is(err, ErrInvalidVar) {
		t.Errorf("expected ErrInvalidVar, got %v", err)
	}
	if got := e.VarOr("missing", nil); got != nil {
		t.Errorf("VarOr = %v", got)
	}
	if got := e.VarOr("ext", "x"); got != "timg" {
		t.Errorf("ext = %v", got)
	}
	if diff := cmp.Diff([]string{"shot"}, e.ContextVarNames()); diff != "" {
		t.Errorf("context vars (-want +got):\n%s", diff)
	}
	if _, err := e.Tag("nope"); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("expected ErrInvalidTag, got %v", err)
	}
}

func TestCloneRoundTrip(t *testing.T) {
	e, err := CreateFromPath("/shots/a/plate.exr.timg")
	if err != nil {
		t.Fatal(err)
	}
	e.SetVar("shot", "a", true)
	e.SetVar("width", 1920, false)
	e.SetVar("layers", []any{"rgba", "depth"}, false)
	e.SetTag("group", "a")

	c, err := e.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if c == e {
		t.Fatal("clone returned the same pointer")
	}
	if c.Type() != "testExr" {
		t.Errorf("clone type = %q", c.Type())
	}
	if diff := cmp.Diff(e.vars, c.vars); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(e.tags, c.tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(e.ContextVarNames(), c.ContextVarNames()); diff != "" {
		t.Errorf("context vars mismatch (-want +got):\n%s", diff)
	}
}

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"a/one.timg", "a/two.txt", "b/three.exr.timg", "top.txt"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestGlob(t *testing.T) {
	root := makeTree(t)
	dir, err := CreateFromPath(root)
	if err != nil {
		t.Fatal(err)
	}

	all, err := dir.Glob(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range all {
		rel, _ := filepath.Rel(root, e.FullPath())
		got = append(got, rel+":"+e.Type())
	}
	want := []string{
		"a:directory", "a/one.timg:testImage", "a/two.txt:file",
		"b:directory", "b/three.exr.timg:testExr", "top.txt:file",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Glob mismatch (-want +got):\n%s", diff)
	}

	images, err := dir.Glob([]string{"testImage"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Errorf("image glob returned %d elements", len(images))
	}

	shallow, err := dir.Glob(nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(shallow) != 3 {
		t.Errorf("shallow glob returned %d elements", len(shallow))
	}
}

func TestChildrenCachingScope(t *testing.T) {
	root := makeTree(t)
	dir, err := CreateFromPath(root)
	if err != nil {
		t.Fatal(err)
	}

	first, _ := dir.Children()
	second, _ := dir.Children()
	if first[0] == second[0] {
		t.Error("children cached outside a caching scope")
	}

	end := BeginCaching()
	a, _ := dir.Children()
	b, _ := dir.Children()
	if a[0] != b[0] {
		t.Error("children not cached inside a scope")
	}

	c, err := dir.Clone()
	if err != nil {
		t.Fatal(err)
	}
	cc, err := c.Children()
	if err != nil {
		t.Fatal(err)
	}
	if len(cc) != len(a) || cc[0].FullPath() != a[0].FullPath() {
		t.Error("clone inside a scope lost cached children")
	}
	end()
	end()

	if Caching() {
		t.Error("scope still active after end")
	}
	if _, ok := dir.cachedChildren(); ok {
		t.Error("cache survived the scope")
	}

	leaf, _ := CreateFromPath(filepath.Join(root, "top.txt"))
	if _, err := leaf.Children(); !errors.Is(err, ErrLeafChildren) {
		t.Errorf("expected ErrLeafChildren, got %v", err)
	}
}

func TestChildrenInheritContextVars(t *testing.T) {
	root := makeTree(t)
	dir, _ := CreateFromPath(root)
	dir.SetVar("job", "show", true)
	dir.SetVar("local", "x", false)

	children, err := dir.Children()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range children {
		if c.VarOr("job", nil) != "show" || !c.IsContextVar("job") {
			t.Errorf("%s did not inherit context var", c.FullPath())
		}
		if c.HasVar("local") {
			t.Errorf("%s inherited a non-context var", c.FullPath())
		}
		if c.FullPath() != filepath.Join(root, c.Name()) {
			t.Errorf("fullPath %q is not parent/name", c.FullPath())
		}
	}
}

func TestGroup(t *testing.T) {
	mk := func(path, group string) *Element {
		e, err := CreateFromPath(path)
		if err != nil {
			t.Fatal(err)
		}
		if group != "" {
			e.SetTag("g", group)
		}
		return e
	}
	xs := []*Element{
		mk("/1", "b"), mk("/2", ""), mk("/3", "a"), mk("/4", "b"), mk("/5", ""),
	}
	groups := Group(xs, "g")
	var got [][]string
	for _, g := range groups {
		var names []string
		for _, e := range g {
			names = append(names, e.FullPath())
		}
		got = append(got, names)
	}
	want := [][]string{{"/1", "/4"}, {"/3"}, {"/2"}, {"/5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Group mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateFromJSONUnknownType(t *testing.T) {
	_, err := CreateFromJSON(`{"vars":{"type":"nosuch","name":"x","fullPath":"/x"},"contextVarNames":[],"tags":{},"children":null,"serializeInitializationData":"/x"}`)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
}

func TestVarExtractor(t *testing.T) {
	x, err := NewVarExtractor("{job:context}/shots/{shot}/*/{plate}.exr")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job", "shot", "plate"}, x.VarNames()); diff != "" {
		t.Errorf("VarNames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"job"}, x.ContextVarNames()); diff != "" {
		t.Errorf("ContextVarNames (-want +got):\n%s", diff)
	}

	src := "/mnt/show/shots/sh010/comp/plate.exr"
	if !x.Match(src) {
		t.Fatalf("pattern did not match %q", src)
	}
	if x.Match("/mnt/show/shots/sh010/plate.exr") {
		t.Error("wildcard segment should be required")
	}

	e, err := CreateFromPath(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := x.Apply(e); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"job": "show", "shot": "sh010", "plate": "plate"}
	for k, v := range want {
		if got := e.VarOr(k, nil); got != v {
			t.Errorf("%s = %v, want %v", k, got, v)
		}
	}
	if !e.IsContextVar("job") || e.IsContextVar("shot") {
		t.Error("context flags not applied")
	}
}
