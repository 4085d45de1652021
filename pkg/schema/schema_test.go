package schema

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
	_ "github.com/ormasoftchile/kombi/pkg/tasks"
)

// TestLoadValidConfigs ensures valid YAML files parse without errors.
func TestLoadValidConfigs(t *testing.T) {
	files, err := filepath.Glob("../../testdata/valid/*.yaml")
	if err != nil {
		t.Fatalf("glob valid fixtures: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no valid test fixtures found")
	}
	for _, f := range files {
		name := filepath.Base(f)
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadFile(f)
			if err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if cfg.APIVersion != APIVersion {
				t.Errorf("apiVersion = %q, want %q", cfg.APIVersion, APIVersion)
			}
			if len(cfg.TaskHolders) == 0 {
				t.Error("expected at least one task holder")
			}
		})
	}
}

// TestLoadRejectsUnknownFields verifies that strict mode rejects unknown YAML keys.
func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := LoadFile("../../testdata/invalid/unknown-fields.yaml")
	if err == nil {
		t.Fatal("expected error for unknown fields")
	}
	if !strings.Contains(err.Error(), "destination") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestLoadRejectsInvalidTypes(t *testing.T) {
	doc := `apiVersion: kombi/v1
taskHolders: "copy"
`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestLoadJSON(t *testing.T) {
	doc := `{"apiVersion": "kombi/v1", "taskHolders": [{"task": "copy", "target": "/out/{name}"}]}`
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TaskHolders[0].Target != "/out/{name}" {
		t.Errorf("target = %q", cfg.TaskHolders[0].Target)
	}
}

func TestLoadPathDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("10-copy.yaml", "apiVersion: kombi/v1\nvars:\n  out: /a\ntaskHolders:\n  - task: copy\n")
	write("20-remove.yml", "apiVersion: kombi/v1\nvars:\n  out: /b\nresources: [tasks]\ntaskHolders:\n  - task: remove\n")
	write("notes.txt", "ignored")

	cfg, err := LoadPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	var tasks []string
	for _, h := range cfg.TaskHolders {
		tasks = append(tasks, h.Task)
	}
	if diff := cmp.Diff([]string{"copy", "remove"}, tasks); diff != "" {
		t.Errorf("holders (-want +got):\n%s", diff)
	}
	if cfg.Vars["out"] != "/b" {
		t.Errorf("later file did not override vars: %v", cfg.Vars["out"])
	}
	if diff := cmp.Diff([]string{"tasks"}, cfg.Resources); diff != "" {
		t.Errorf("resources (-want +got):\n%s", diff)
	}

	if _, err := LoadPath(t.TempDir()); err == nil {
		t.Error("expected error for a directory without configuration files")
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$id"] != SchemaID {
		t.Errorf("$id = %v", doc["$id"])
	}
	for _, want := range []string{"taskHolders", "regroupTag", "contextVars"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema does not mention %s", want)
		}
	}
}

func TestBuild(t *testing.T) {
	cfg, err := LoadFile("../../testdata/valid/ingest.yaml")
	if err != nil {
		t.Fatal(err)
	}
	holders, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(holders) != 2 {
		t.Fatalf("got %d root holders", len(holders))
	}

	root := holders[0]
	if root.Task().Type() != "createDirectory" {
		t.Errorf("root task = %s", root.Task().Type())
	}
	if got := root.TargetTemplate().Input(); got != "{prefix}/{show}/(upper {ext})" {
		t.Errorf("target = %q", got)
	}
	if diff := cmp.Diff([]string{"file"}, root.Matcher().Types()); diff != "" {
		t.Errorf("match types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"ext": {"exr", "png"}}, root.Matcher().Vars()); diff != "" {
		t.Errorf("match vars (-want +got):\n%s", diff)
	}
	if !root.IsContextVar("show") || root.IsContextVar("prefix") {
		t.Errorf("context vars = %v", root.ContextVarNames())
	}

	copyHolder := root.Children()[0]
	if v, _ := copyHolder.Var("prefix"); v != "/data/ingest" {
		t.Errorf("inherited var prefix = %v", v)
	}
	if v, _ := copyHolder.Tag("group"); v != "plates" {
		t.Errorf("tag group = %v", v)
	}
	if v, _ := copyHolder.Task().RawOption("overwrite"); v != true {
		t.Errorf("overwrite = %v", v)
	}
	if copyHolder.FilterTemplate().Input() != "(different {baseName} 'skip')" {
		t.Errorf("filter = %q", copyHolder.FilterTemplate().Input())
	}

	command := copyHolder.Children()[0]
	if command.Status() != taskholder.StatusBypass {
		t.Errorf("status = %s", command.Status())
	}
	if v := command.Task().MetadataOr("dispatch.renderFarm.pool", nil); v != "gpu" {
		t.Errorf("farm pool metadata = %v", v)
	}
	if holders[1].Status() != taskholder.StatusIgnore {
		t.Errorf("second holder status = %s", holders[1].Status())
	}
}

func TestBuildVarOverride(t *testing.T) {
	doc := `apiVersion: kombi/v1
vars:
  out: /root
  show: demo
taskHolders:
  - task: passthrough
    vars:
      out: /parent
    taskHolders:
      - task: passthrough
        vars:
          show: other
        contextVars: [out]
`
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Resources = []string{"tasks"}
	holders, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	child := holders[0].Children()[0]
	if v, _ := child.Var("out"); v != "/parent" {
		t.Errorf("out = %v", v)
	}
	if v, _ := child.Var("show"); v != "other" {
		t.Errorf("show = %v", v)
	}
	if !child.IsContextVar("out") || holders[0].IsContextVar("out") {
		t.Error("context flag leaked to the parent or was not set on the child")
	}
}

func TestBuildErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unregistered task": "apiVersion: kombi/v1\ntaskHolders:\n  - task: transcode\n",
		"bad status":        "apiVersion: kombi/v1\ntaskHolders:\n  - task: copy\n    status: sometimes\n",
		"missing resource":  "apiVersion: kombi/v1\nresources: [nope]\ntaskHolders:\n  - task: copy\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(strings.NewReader(doc))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Resources == nil {
				cfg.Resources = []string{"tasks"}
			}
			if _, err := Build(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildAndRun(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.exr", "b.exr", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	doc := `apiVersion: kombi/v1
resources: [tasks]
vars:
  out: ` + out + `
taskHolders:
  - task: copy
    target: "{out}/{baseName}.copy.{ext}"
    match:
      types: [file]
      vars:
        ext: exr
`
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	holders, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var elements []*element.Element
	for _, name := range []string{"a.exr", "b.exr", "notes.txt"} {
		e, err := element.CreateFromPath(filepath.Join(src, name))
		if err != nil {
			t.Fatal(err)
		}
		elements = append(elements, e)
	}
	results, err := holders[0].Run(context.Background(), elements, taskholder.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range results {
		got = append(got, e.Name())
	}
	if diff := cmp.Diff([]string{"a.copy.exr", "b.copy.exr"}, got); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(out, "notes.copy.txt")); !os.IsNotExist(err) {
		t.Error("unmatched element was copied")
	}
}
