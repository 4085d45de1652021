package procedure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

func init() {
	Register("slice", slice)
	Register("repeat", repeat)
	Register("upper", unary("upper", strings.ToUpper))
	Register("lower", unary("lower", strings.ToLower))
	Register("concat", func(args ...string) (any, error) { return strings.Join(args, ""), nil })
	Register("capitalize", unary("capitalize", capitalize))
	Register("fallback", fallback)
	Register("replace", replace)
	Register("remove", remove)
	Register("match", match)
	Register("len", unary("len", func(s string) string { return strconv.Itoa(utf8.RuneCountInString(s)) }))
	Register("undefined", func(args ...string) (any, error) { return len(args) == 0 || args[0] == "", nil })
	Register("defined", func(args ...string) (any, error) { return len(args) > 0 && args[0] != "", nil })
	Register("equal", compare("equal", true))
	Register("different", compare("different", false))
	Register("splitpart", splitPart)
	Register("camelcasetospaced", unary("camelcasetospaced", camelCaseToSpaced))
}

func unary(name string, fn func(string) string) Func {
	return func(args ...string) (any, error) {
		if err := requireArgs(name, args, 1); err != nil {
			return nil, err
		}
		return fn(args[0]), nil
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// slice returns s[start:end] with python-style negative indexes. end is
// optional.
func slice(args ...string) (any, error) {
	if err := requireArgs("slice", args, 2); err != nil {
		return nil, err
	}
	runes := []rune(args[0])
	n := len(runes)
	start, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return nil, fmt.Errorf("slice: invalid start %q", args[1])
	}
	end := n
	if len(args) > 2 && strings.TrimSpace(args[2]) != "" {
		end, err = strconv.Atoi(strings.TrimSpace(args[2]))
		if err != nil {
			return nil, fmt.Errorf("slice: invalid end %q", args[2])
		}
	}
	start, end = clampIndex(start, n), clampIndex(end, n)
	if start >= end {
		return "", nil
	}
	return string(runes[start:end]), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func repeat(args ...string) (any, error) {
	if err := requireArgs("repeat", args, 2); err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("repeat: invalid count %q", args[1])
	}
	return strings.Repeat(args[0], count), nil
}

// fallback returns the first non-empty argument.
func fallback(args ...string) (any, error) {
	for _, arg := range args {
		if arg != "" {
			return arg, nil
		}
	}
	return "", nil
}

func replace(args ...string) (any, error) {
	if err := requireArgs("replace", args, 3); err != nil {
		return nil, err
	}
	return strings.ReplaceAll(args[0], args[1], args[2]), nil
}

func remove(args ...string) (any, error) {
	if err := requireArgs("remove", args, 2); err != nil {
		return nil, err
	}
	return strings.ReplaceAll(args[0], args[1], ""), nil
}

// match reports whether the regular expression in the second argument
// matches the first argument.
func match(args ...string) (any, error) {
	if err := requireArgs("match", args, 2); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(args[1])
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return re.MatchString(args[0]), nil
}

func compare(name string, want bool) Func {
	return func(args ...string) (any, error) {
		if err := requireArgs(name, args, 2); err != nil {
			return nil, err
		}
		return (args[0] == args[1]) == want, nil
	}
}

// splitPart splits the first argument by the separator and returns the part
// at the given index (negative indexes count from the end).
func splitPart(args ...string) (any, error) {
	if err := requireArgs("splitpart", args, 3); err != nil {
		return nil, err
	}
	parts := strings.Split(args[0], args[1])
	idx, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil {
		return nil, fmt.Errorf("splitpart: invalid index %q", args[2])
	}
	if idx < 0 {
		idx += len(parts)
	}
	if idx < 0 || idx >= len(parts) {
		return "", nil
	}
	return parts[idx], nil
}

// camelCaseToSpaced turns "shotNameLong" into "Shot Name Long".
func camelCaseToSpaced(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(prev) && prev != ' ' {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return capitalize(b.String())
}
