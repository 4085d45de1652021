package procedure

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func init() {
	Register("sum", numericFold("sum", func(a, b float64) float64 { return a + b }))
	Register("sub", numericFold("sub", func(a, b float64) float64 { return a - b }))
	Register("mult", numericFold("mult", func(a, b float64) float64 { return a * b }))
	Register("div", divide)
	Register("min", numericFold("min", math.Min))
	Register("max", numericFold("max", math.Max))
	Register("round", round)
	Register("even", parity("even", 0))
	Register("odd", parity("odd", 1))
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

func numericFold(name string, op func(a, b float64) float64) Func {
	return func(args ...string) (any, error) {
		if err := requireArgs(name, args, 1); err != nil {
			return nil, err
		}
		acc, err := parseNumber(args[0])
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			v, err := parseNumber(arg)
			if err != nil {
				return nil, err
			}
			acc = op(acc, v)
		}
		return acc, nil
	}
}

func divide(args ...string) (any, error) {
	if err := requireArgs("div", args, 2); err != nil {
		return nil, err
	}
	acc, err := parseNumber(args[0])
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		v, err := parseNumber(arg)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, errors.New("division by zero")
		}
		acc /= v
	}
	return acc, nil
}

// round rounds to the nearest integer, or to the number of decimal places
// given as the optional second argument.
func round(args ...string) (any, error) {
	if err := requireArgs("round", args, 1); err != nil {
		return nil, err
	}
	v, err := parseNumber(args[0])
	if err != nil {
		return nil, err
	}
	places := 0
	if len(args) > 1 {
		places, err = strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return nil, fmt.Errorf("round: invalid precision %q", args[1])
		}
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale, nil
}

func parity(name string, remainder int64) Func {
	return func(args ...string) (any, error) {
		if err := requireArgs(name, args, 1); err != nil {
			return nil, err
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return nil, err
		}
		n := int64(v)
		if n < 0 {
			n = -n
		}
		return n%2 == remainder, nil
	}
}
