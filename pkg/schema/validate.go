package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/resource"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // location such as "taskHolders[0].taskHolders[1].status"
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a
// configuration file or directory.
// Phase 1: Structural (strict decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (registries and templates)
func ValidateFile(path string) (*Config, []*ValidationError) {
	cfg, err := LoadPath(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var all []*ValidationError
	all = append(all, validateSemantic(cfg)...)
	all = append(all, ValidateDomain(cfg)...)
	if len(all) > 0 {
		return cfg, all
	}
	return cfg, nil
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// validateSemantic validates the configuration against the JSON Schema.
func validateSemantic(cfg *Config) []*ValidationError {
	data, err := json.Marshal(cfg)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("config-v1.json", schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile("config-v1.json")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	doc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return semanticError("unmarshal document: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semanticError("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation: the resources
// load, task types and wrappers are registered, statuses are known, context
// variables are defined and templates only call registered procedures.
func ValidateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}

	if cfg.APIVersion != APIVersion {
		add("apiVersion", "unrecognized apiVersion %q, expected %q", cfg.APIVersion, APIVersion)
	}
	if len(cfg.TaskHolders) == 0 {
		add("taskHolders", "no task holders defined")
	}
	if err := resource.Require(cfg.Resources...); err != nil {
		add("resources", "%v", err)
	}
	rootVars := known(nil, cfg.Vars)
	checkContextVars("", rootVars, cfg.ContextVars, add)

	wrappers := map[string]bool{}
	for _, name := range taskwrapper.Names() {
		wrappers[name] = true
	}

	var walk func(prefix string, inherited map[string]bool, holders []TaskHolder)
	walk = func(prefix string, inherited map[string]bool, holders []TaskHolder) {
		for i, h := range holders {
			path := fmt.Sprintf("%staskHolders[%d]", prefix, i)
			if h.Task == "" {
				add(path+".task", "task type is required")
			} else if !task.IsRegistered(h.Task) {
				add(path+".task", "task type %q is not registered", h.Task)
			}
			if _, err := taskholder.ParseStatus(h.Status); err != nil {
				add(path+".status", "%v", err)
			}
			if h.Wrapper != "" && !wrappers[h.Wrapper] {
				add(path+".wrapper", "task wrapper %q is not registered", h.Wrapper)
			}
			vars := known(inherited, h.Vars)
			checkContextVars(path+".", vars, h.ContextVars, add)

			fields := []string{"target", "filter", "export", "profile"}
			sources := []string{h.Target, h.Filter, h.Export, h.Profile}
			for j, imp := range h.Import {
				fields = append(fields, fmt.Sprintf("import[%d]", j))
				sources = append(sources, imp)
			}
			for j, src := range sources {
				for _, name := range ProcedureNames(src) {
					if _, ok := procedure.Lookup(name); !ok {
						add(path+"."+fields[j], "procedure %q is not registered", name)
					}
				}
			}
			walk(path+".", vars, h.TaskHolders)
		}
	}
	walk("", rootVars, cfg.TaskHolders)
	return errs
}

func known(inherited map[string]bool, vars map[string]any) map[string]bool {
	out := make(map[string]bool, len(inherited)+len(vars))
	for name := range inherited {
		out[name] = true
	}
	for name := range vars {
		out[name] = true
	}
	return out
}

func checkContextVars(prefix string, vars map[string]bool, names []string, add func(path, format string, args ...any)) {
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			add(prefix+"contextVars", "context variable %q listed twice", name)
		}
		seen[name] = true
		if !vars[name] {
			add(prefix+"contextVars", "context variable %q has no value in vars", name)
		}
	}
}

// ProcedureNames returns the procedure names called by a template source,
// in order of appearance. Quoted text and arithmetic are skipped.
func ProcedureNames(src string) []string {
	var names []string
	inQuote := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && inQuote:
			i++
		case c == '\'':
			inQuote = !inQuote
		case c == '(' && !inQuote:
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
				j++
			}
			k := j
			for k < len(src) && (isIdent(src[k]) || (k > j && src[k] >= '0' && src[k] <= '9')) {
				k++
			}
			if k > j && (k == len(src) || src[k] == ' ' || src[k] == ')') {
				names = append(names, src[j:k])
			}
		}
	}
	return names
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
