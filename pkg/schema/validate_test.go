package schema

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateFileValid(t *testing.T) {
	for _, f := range []string{"../../testdata/valid/minimal.yaml", "../../testdata/valid/ingest.yaml"} {
		cfg, errs := ValidateFile(f)
		if len(errs) > 0 {
			t.Errorf("%s: unexpected errors: %v", f, errs)
		}
		if cfg == nil {
			t.Errorf("%s: no config returned", f)
		}
	}
}

func TestValidateFileStructural(t *testing.T) {
	cfg, errs := ValidateFile("../../testdata/invalid/unknown-fields.yaml")
	if cfg != nil {
		t.Error("structural failure returned a config")
	}
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Fatalf("expected one structural error, got %v", errs)
	}
}

func TestValidateFileSemantic(t *testing.T) {
	_, errs := ValidateFile("../../testdata/invalid/bad-status.yaml")
	phases := map[string]bool{}
	for _, e := range errs {
		phases[e.Phase] = true
	}
	if !phases["semantic"] || !phases["domain"] {
		t.Errorf("expected semantic and domain errors, got %v", errs)
	}
}

func TestValidateDomain(t *testing.T) {
	_, errs := ValidateFile("../../testdata/invalid/domain-errors.yaml")
	var got []string
	for _, e := range errs {
		if e.Phase == "domain" {
			got = append(got, e.Path)
		}
	}
	want := []string{
		"contextVars",
		"taskHolders[0].task",
		"taskHolders[0].target",
		"taskHolders[0].taskHolders[0].wrapper",
		"taskHolders[0].taskHolders[0].contextVars",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("domain error paths (-want +got):\n%s", diff)
	}
	for _, e := range errs {
		if e.Path == "taskHolders[0].target" && !strings.Contains(e.Message, "shout") {
			t.Errorf("procedure error does not name the procedure: %s", e.Message)
		}
	}
}

func TestValidateDomainVersion(t *testing.T) {
	errs := ValidateDomain(&Config{APIVersion: "kombi/v0"})
	var paths []string
	for _, e := range errs {
		paths = append(paths, e.Path)
	}
	if diff := cmp.Diff([]string{"apiVersion", "taskHolders"}, paths); diff != "" {
		t.Errorf("paths (-want +got):\n%s", diff)
	}
}

func TestProcedureNames(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"{prefix}/{name}", nil},
		{"(upper {ext})", []string{"upper"}},
		{"(concat (lower {a}) '(ignored x)')", []string{"concat", "lower"}},
		{"({frame} + 1)", nil},
		{"( pad2 {frame} 4)", []string{"pad2"}},
		{"'it\\'s (quoted y)' (yyyy)", []string{"yyyy"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ProcedureNames(tt.src)); diff != "" {
			t.Errorf("ProcedureNames(%q) (-want +got):\n%s", tt.src, diff)
		}
	}
}
