// Package template implements the path template language used by rules to
// compute targets, filters and export locations.
//
// A template mixes literal text with:
//
//	{name}                 variable substitution
//	(proc arg 'a b' {x})   procedure call, nested at any depth
//	(4 + 1)                integer arithmetic
//	(proc ... as <tok>)    binds the result to <tok> for reuse elsewhere
//	<parent>               inside a procedure argument: directory resolved so far
//	/!segment/             asserts the path up to and including segment exists
//
// Substituted values are never reinterpreted as template syntax.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/ormasoftchile/kombi/pkg/pathcache"
	"github.com/ormasoftchile/kombi/pkg/procedure"
)

// requiredMarker replaces a literal "!" at the start of a path segment while
// the template is being resolved.
const requiredMarker = "\x00"

var (
	varNameRe    = regexp.MustCompile(`\{([^{}\s()]+)\}`)
	tokenRe      = regexp.MustCompile(`^<(\w+)>`)
	tokenExactRe = regexp.MustCompile(`^<(\w+)>$`)
	arithmeticRe = regexp.MustCompile(`^[\d\s+\-*/().]+$`)
	numberRe     = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Resolver looks up variable values for a template.
type Resolver interface {
	LookupVar(name string) (any, bool)
}

// Vars is a plain variable map.
type Vars map[string]any

// LookupVar implements Resolver.
func (v Vars) LookupVar(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

type chain []Resolver

func (c chain) LookupVar(name string) (any, bool) {
	for _, r := range c {
		if v, ok := r.LookupVar(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Chain returns a resolver consulting rs in order. Nil resolvers are skipped.
func Chain(rs ...Resolver) Resolver {
	var c chain
	for _, r := range rs {
		if r == nil {
			continue
		}
		if v, ok := r.(Vars); ok && len(v) == 0 {
			continue
		}
		c = append(c, r)
	}
	return c
}

// String renders a value the way templates interpolate it.
func String(v any) string {
	return procedure.ToString(v)
}

// Template is an immutable template source with a per-instance cache of
// procedure results.
type Template struct {
	input    string
	varNames []string

	mu    sync.Mutex
	cache map[string]string
}

// New parses the variable names of input and returns a Template.
func New(input string) *Template {
	t := &Template{input: input, cache: make(map[string]string)}
	seen := make(map[string]bool)
	for _, m := range varNameRe.FindAllStringSubmatch(input, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			t.varNames = append(t.varNames, m[1])
		}
	}
	return t
}

// Input returns the template source.
func (t *Template) Input() string {
	if t == nil {
		return ""
	}
	return t.input
}

// VarNames returns the names of the variables referenced by the template, in
// order of first appearance.
func (t *Template) VarNames() []string {
	out := make([]string, len(t.varNames))
	copy(out, t.varNames)
	return out
}

// IsEmpty reports whether the template has no source.
func (t *Template) IsEmpty() bool {
	return t == nil || strings.TrimSpace(t.input) == ""
}

// Value resolves the template against r.
func (t *Template) Value(r Resolver) (string, error) {
	if t == nil || t.input == "" {
		return "", nil
	}
	e := &evaluator{t: t, r: r, tokens: make(map[string]string)}
	if err := e.run(); err != nil {
		return "", err
	}
	return e.finish()
}

func (t *Template) cached(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache[key]
	return v, ok
}

func (t *Template) store(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[key] = value
}

// piece is either literal text or a reference to a named token resolved once
// the whole template has been evaluated.
type piece struct {
	text  string
	token string
}

type evaluator struct {
	t      *Template
	r      Resolver
	pieces []piece
	tokens map[string]string
}

func (e *evaluator) run() error {
	s := e.t.input
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '{':
			name, next, ok := readVar(s, i)
			if !ok {
				e.literal("{")
				i++
				continue
			}
			v, err := e.lookup(name)
			if err != nil {
				return err
			}
			e.literal(v)
			i = next
		case c == '(':
			inner, next, err := e.readGroup(s, i)
			if err != nil {
				return err
			}
			v, err := e.call(inner, e.rendered())
			if err != nil {
				return err
			}
			e.literal(v)
			i = next
		case c == '<':
			if m := tokenRe.FindStringSubmatch(s[i:]); m != nil {
				e.pieces = append(e.pieces, piece{token: m[1]})
				i += len(m[0])
				continue
			}
			e.literal("<")
			i++
		case c == '!' && (i == 0 || s[i-1] == '/'):
			e.literal(requiredMarker)
			i++
		default:
			j := i + 1
			for j < len(s) && !strings.ContainsRune("{(<!", rune(s[j])) {
				j++
			}
			e.literal(s[i:j])
			i = j
		}
	}
	return nil
}

func (e *evaluator) literal(text string) {
	if n := len(e.pieces); n > 0 && e.pieces[n-1].token == "" {
		e.pieces[n-1].text += text
		return
	}
	e.pieces = append(e.pieces, piece{text: text})
}

// rendered returns the output produced so far, with tokens assigned so far
// substituted.
func (e *evaluator) rendered() string {
	var b strings.Builder
	for _, p := range e.pieces {
		if p.token == "" {
			b.WriteString(p.text)
		} else if v, ok := e.tokens[p.token]; ok {
			b.WriteString(v)
		} else {
			b.WriteString("<" + p.token + ">")
		}
	}
	return b.String()
}

func (e *evaluator) finish() (string, error) {
	out := e.rendered()
	if !strings.Contains(out, requiredMarker) {
		return out, nil
	}

	segments := strings.Split(out, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, requiredMarker) {
			continue
		}
		name := strings.TrimPrefix(seg, requiredMarker)
		segments[i] = name
		path := strings.Join(segments[:i+1], "/")
		if path == "" {
			path = "/"
		}
		if !pathcache.Exists(path) {
			return "", &RequiredPathNotFoundError{Segment: "!" + name, Path: path, Template: e.t.input}
		}
	}
	return strings.Join(segments, "/"), nil
}

func (e *evaluator) lookup(name string) (string, error) {
	if e.r != nil {
		if v, ok := e.r.LookupVar(name); ok {
			return String(v), nil
		}
	}
	return "", &VarNotFoundError{Name: name, Template: e.t.input}
}

// readVar reads "{name}" starting at s[i].
func readVar(s string, i int) (name string, next int, ok bool) {
	end := strings.IndexByte(s[i+1:], '}')
	if end <= 0 {
		return "", i, false
	}
	name = s[i+1 : i+1+end]
	if strings.ContainsAny(name, "{( \t\n") {
		return "", i, false
	}
	return name, i + end + 2, true
}

// readGroup returns the text between the parenthesis at s[i] and its match.
func (e *evaluator) readGroup(s string, i int) (string, int, error) {
	depth := 0
	inQuote := false
	for j := i; j < len(s); j++ {
		c := s[j]
		if inQuote {
			if c == '\\' && j+1 < len(s) && s[j+1] == '\'' {
				j++
			} else if c == '\'' {
				inQuote = false
			}
			continue
		}
		switch c {
		case '\'':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[i+1 : j], j + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("template %q: unbalanced parenthesis at offset %d", e.t.input, i)
}

// argument is one word of a procedure expression. arith is the value with
// every substitution that is not a plain number replaced by an opaque rune,
// so substituted text never takes part in arithmetic as syntax.
type argument struct {
	value  string
	raw    string
	arith  string
	quoted bool
}

// call evaluates the content of a parenthesized expression. sofar is the top
// level output produced before the expression, used to expand <parent>.
func (e *evaluator) call(inner, sofar string) (string, error) {
	args, err := e.arguments(inner, sofar)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", fmt.Errorf("template %q: empty procedure call", e.t.input)
	}

	token := ""
	if n := len(args); n >= 3 && !args[n-2].quoted && args[n-2].raw == "as" {
		if m := tokenExactRe.FindStringSubmatch(args[n-1].raw); m != nil {
			token = m[1]
			args = args[:n-2]
		}
	}

	result, err := e.invoke(args)
	if err != nil {
		return "", err
	}
	if token != "" {
		e.tokens[token] = result
	}
	return result, nil
}

func (e *evaluator) invoke(args []argument) (string, error) {
	values := make([]string, len(args))
	ariths := make([]string, len(args))
	quoted := false
	for i, a := range args {
		values[i] = a.value
		ariths[i] = a.arith
		quoted = quoted || a.quoted
	}

	if joined := strings.Join(ariths, " "); !quoted && arithmeticRe.MatchString(joined) && strings.ContainsAny(joined, "0123456789") {
		return e.arithmetic(joined)
	}

	name := values[0]
	key := strings.Join(values, "\x1f")
	if v, ok := e.t.cached(key); ok {
		return v, nil
	}
	fn, ok := procedure.Lookup(name)
	if !ok {
		return "", &ProcedureNotFoundError{Name: name, Template: e.t.input}
	}
	v, err := fn(values[1:]...)
	if err != nil {
		return "", fmt.Errorf("template %q: procedure %q: %w", e.t.input, name, err)
	}
	result := String(v)
	e.t.store(key, result)
	return result, nil
}

func (e *evaluator) arithmetic(expression string) (string, error) {
	out, err := expr.Eval(expression, nil)
	if err != nil {
		return "", fmt.Errorf("template %q: arithmetic %q: %w", e.t.input, expression, err)
	}
	switch v := out.(type) {
	case int:
		return String(v), nil
	case int64:
		return String(v), nil
	case float64:
		return String(int(v)), nil
	default:
		return "", fmt.Errorf("template %q: arithmetic %q produced %T", e.t.input, expression, out)
	}
}

// arguments splits a procedure expression on whitespace, resolving variables,
// tokens and nested calls. Single quotes preserve spaces and \' escapes a
// quote inside them.
func (e *evaluator) arguments(inner, sofar string) ([]argument, error) {
	var (
		args    []argument
		cur     strings.Builder
		raw     strings.Builder
		arith   strings.Builder
		started bool
		quoted  bool
		inQuote bool
	)
	flush := func() {
		if started {
			args = append(args, argument{value: cur.String(), raw: raw.String(), arith: arith.String(), quoted: quoted})
		}
		cur.Reset()
		raw.Reset()
		arith.Reset()
		started, quoted = false, false
	}

	for i := 0; i < len(inner); {
		c := inner[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(inner) && inner[i+1] == '\'':
			cur.WriteByte('\'')
			arith.WriteByte('\'')
			raw.WriteString(`\'`)
			i += 2
		case c == '\'':
			inQuote = !inQuote
			started, quoted = true, true
			raw.WriteByte(c)
			i++
		case !inQuote && (c == ' ' || c == '\t' || c == '\n'):
			flush()
			i++
		case c == '{':
			name, next, ok := readVar(inner, i)
			if !ok {
				cur.WriteByte(c)
				arith.WriteByte(c)
				raw.WriteByte(c)
				started = true
				i++
				continue
			}
			v, err := e.lookup(name)
			if err != nil {
				return nil, err
			}
			cur.WriteString(v)
			arith.WriteString(operand(v))
			raw.WriteString(inner[i:next])
			started = true
			i = next
		case c == '(' && !inQuote:
			group, next, err := e.readGroup(inner, i)
			if err != nil {
				return nil, err
			}
			v, err := e.call(group, sofar)
			if err != nil {
				return nil, err
			}
			cur.WriteString(v)
			arith.WriteString(operand(v))
			raw.WriteString(inner[i:next])
			started = true
			i = next
		case c == '<':
			m := tokenRe.FindStringSubmatch(inner[i:])
			switch {
			case m == nil:
				cur.WriteByte(c)
				arith.WriteByte(c)
			case m[1] == "parent":
				v := parentDir(sofar)
				cur.WriteString(v)
				arith.WriteString(operand(v))
			default:
				v, ok := e.tokens[m[1]]
				if !ok {
					v = m[0]
				}
				cur.WriteString(v)
				arith.WriteString(operand(v))
			}
			if m == nil {
				raw.WriteByte(c)
				i++
			} else {
				raw.WriteString(m[0])
				i += len(m[0])
			}
			started = true
		default:
			cur.WriteByte(c)
			arith.WriteByte(c)
			raw.WriteByte(c)
			started = true
			i++
		}
	}
	if inQuote {
		return nil, fmt.Errorf("template %q: unterminated quote in %q", e.t.input, inner)
	}
	flush()
	return args, nil
}

// operand returns the arithmetic form of a substituted value: the value
// itself when it is a plain number, an opaque rune otherwise.
func operand(v string) string {
	if numberRe.MatchString(v) {
		return v
	}
	return "\uFFFD"
}

// parentDir returns the directory portion of a partially resolved path.
func parentDir(sofar string) string {
	s := strings.ReplaceAll(sofar, requiredMarker, "")
	idx := strings.LastIndex(s, "/")
	switch {
	case idx < 0:
		return ""
	case idx == 0:
		return "/"
	default:
		return s[:idx]
	}
}
