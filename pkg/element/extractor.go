package element

import (
	"fmt"
	"regexp"
	"strings"
)

// VarExtractor parses variables out of a structured source such as a path.
//
// Patterns use {name} to capture a path segment fragment, {name:context} to
// capture it as a context variable and * as a wildcard. The pattern is
// anchored at the end of the source, so "{shot}/{name}.exr" matches the tail
// of an absolute path.
type VarExtractor struct {
	pattern      string
	re           *regexp.Regexp
	names        []string
	contextNames []string
}

var extractorTokenRe = regexp.MustCompile(`\{([A-Za-z_]\w*)(?::(context))?\}|\*`)

// NewVarExtractor compiles pattern.
func NewVarExtractor(pattern string) (*VarExtractor, error) {
	x := &VarExtractor{pattern: pattern}
	var b strings.Builder
	b.WriteString(`(?:^|/)`)
	last := 0
	for _, m := range extractorTokenRe.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:m[0]]))
		last = m[1]
		if pattern[m[0]] == '*' {
			b.WriteString(`[^/]*`)
			continue
		}
		name := pattern[m[2]:m[3]]
		for _, existing := range x.names {
			if existing == name {
				return nil, fmt.Errorf("%w: %q captured twice in %q", ErrInvalidVar, name, pattern)
			}
		}
		x.names = append(x.names, name)
		if m[4] >= 0 {
			x.contextNames = append(x.contextNames, name)
		}
		b.WriteString(`([^/]+?)`)
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compiling extractor %q: %w", pattern, err)
	}
	x.re = re
	return x, nil
}

// Pattern returns the source pattern.
func (x *VarExtractor) Pattern() string { return x.pattern }

// VarNames returns the captured variable names in pattern order.
func (x *VarExtractor) VarNames() []string { return append([]string(nil), x.names...) }

// ContextVarNames returns the names captured as context variables.
func (x *VarExtractor) ContextVarNames() []string {
	return append([]string(nil), x.contextNames...)
}

// Match reports whether source matches the pattern.
func (x *VarExtractor) Match(source string) bool { return x.re.MatchString(source) }

// Value extracts the captured variables from source.
func (x *VarExtractor) Value(source string) (map[string]string, error) {
	m := x.re.FindStringSubmatch(source)
	if m == nil {
		return nil, fmt.Errorf("%q does not match %q", source, x.pattern)
	}
	out := make(map[string]string, len(x.names))
	for i, name := range x.names {
		out[name] = m[i+1]
	}
	return out, nil
}

// Apply extracts variables from the full path of e and assigns them.
func (x *VarExtractor) Apply(e *Element) error {
	values, err := x.Value(e.FullPath())
	if err != nil {
		return err
	}
	context := make(map[string]bool, len(x.contextNames))
	for _, name := range x.contextNames {
		context[name] = true
	}
	for _, name := range x.names {
		if err := e.SetVar(name, values[name], context[name]); err != nil {
			return err
		}
	}
	return nil
}
