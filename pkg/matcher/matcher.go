// Package matcher implements the element predicate of a rule: a type
// hierarchy check combined with glob patterns over element variables.
package matcher

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/procedure"
)

// Matcher decides whether an element is handled by a rule.
type Matcher struct {
	types []string
	vars  map[string][]string
}

// New creates a matcher. An empty types list accepts any type. Keys of vars
// are variable names, or "TypeName=var" to enforce the rule only on elements
// of TypeName or its subtypes. Values are a pattern or a list of
// alternatives.
func New(types []string, vars map[string]any) *Matcher {
	m := &Matcher{
		types: append([]string(nil), types...),
		vars:  make(map[string][]string, len(vars)),
	}
	for key, v := range vars {
		m.vars[key] = patterns(v)
	}
	return m
}

func patterns(v any) []string {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, procedure.ToString(item))
		}
		return out
	default:
		return []string{procedure.ToString(val)}
	}
}

// Types returns the accepted type names.
func (m *Matcher) Types() []string { return append([]string(nil), m.types...) }

// Vars returns the variable rules.
func (m *Matcher) Vars() map[string][]string {
	out := make(map[string][]string, len(m.vars))
	for k, v := range m.vars {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Match reports whether e satisfies the type list and every applicable
// variable rule. A missing variable matches only the "*" pattern.
func (m *Matcher) Match(e *element.Element) bool {
	if len(m.types) > 0 {
		ok := false
		for _, t := range m.types {
			if element.IsSubType(e.Type(), t) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	keys := make([]string, 0, len(m.vars))
	for k := range m.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := key
		if scope, v, scoped := strings.Cut(key, "="); scoped {
			if !element.IsSubType(e.Type(), scope) {
				continue
			}
			name = v
		}
		value, _ := e.LookupVar(name)
		if !matchAny(procedure.ToString(value), m.vars[key]) {
			return false
		}
	}
	return true
}

func matchAny(value string, pats []string) bool {
	for _, p := range pats {
		if Glob(p, value) {
			return true
		}
	}
	return false
}

var (
	globMu    sync.Mutex
	globCache = map[string]*regexp.Regexp{}
)

// Glob reports whether value matches the shell-style pattern. "*" and "?"
// also match "/", and "[...]" classes accept "!" negation. Reversed ranges
// such as "[z-a]" match nothing.
func Glob(pattern, value string) bool {
	globMu.Lock()
	re, ok := globCache[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(translate(pattern))
		if err != nil {
			ctxlog.FromContext(context.Background()).Warn("invalid glob pattern", "pattern", pattern, "error", err)
			re = nil
		}
		globCache[pattern] = re
	}
	globMu.Unlock()
	return re != nil && re.MatchString(value)
}

func translate(pattern string) string {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(translateClass(pattern[i+1 : j]))
			i = j
		default:
			j := i + 1
			for j < len(pattern) && !strings.ContainsRune("*?[", rune(pattern[j])) {
				j++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i:j]))
			i = j - 1
		}
	}
	b.WriteString(`$`)
	return b.String()
}

// translateClass turns the body of a "[...]" class into a regexp. Empty
// ranges are dropped; a class left empty matches nothing, or any character
// when negated.
func translateClass(class string) string {
	negate := strings.HasPrefix(class, "!")
	if negate {
		class = class[1:]
	}
	rs := []rune(class)
	var b strings.Builder
	for k := 0; k < len(rs); k++ {
		lo := rs[k]
		if k+2 < len(rs) && rs[k+1] == '-' {
			hi := rs[k+2]
			k += 2
			if lo > hi {
				continue
			}
			b.WriteString(classRune(lo) + "-" + classRune(hi))
			continue
		}
		b.WriteString(classRune(lo))
	}
	switch {
	case b.Len() == 0 && negate:
		return `.`
	case b.Len() == 0:
		return `[^\x00-\x{10FFFF}]`
	case negate:
		return "[^" + b.String() + "]"
	}
	return "[" + b.String() + "]"
}

func classRune(r rune) string {
	if strings.ContainsRune(`\]^-[`, r) {
		return `\` + string(r)
	}
	return string(r)
}
