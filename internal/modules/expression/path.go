package expression

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var simplePath = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*|\[[0-9]+\]|\["[^"]*"\]|\['[^']*'\])*$`)

// IsSimplePath reports whether expr is plain dotted/indexed property access
// such as customer.address.city, lines[0].amount or meta["x-id"].
func IsSimplePath(expr string) bool {
	return simplePath.MatchString(strings.TrimSpace(expr))
}

type segment struct {
	key   string
	index int
	isIdx bool
}

func parsePath(expr string) ([]segment, error) {
	s := strings.TrimSpace(expr)
	if !IsSimplePath(s) {
		return nil, fmt.Errorf("invalid path %q", expr)
	}
	var out []segment
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && s[i] != '.' && s[i] != '[' {
			i++
		}
		return s[start:i]
	}
	out = append(out, segment{key: readIdent()})
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			out = append(out, segment{key: readIdent()})
		case '[':
			if q := s[i+1]; q == '"' || q == '\'' {
				end := strings.Index(s[i+2:], string(q)+"]")
				out = append(out, segment{key: s[i+2 : i+2+end]})
				i += end + 4
				continue
			}
			end := strings.IndexByte(s[i:], ']')
			inner := s[i+1 : i+end]
			i += end + 1
			n, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in %q", inner, expr)
			}
			out = append(out, segment{index: n, isIdx: true})
		default:
			return nil, fmt.Errorf("unexpected %q in %q", s[i], expr)
		}
	}
	return out, nil
}

// PathEvaluator resolves simple paths against a Scope. A missing step yields
// nil without error; only malformed syntax is an error.
type PathEvaluator struct{}

func (PathEvaluator) Evaluate(expr string, scope *Scope) (any, error) {
	segs, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	cur, ok := scope.Lookup(segs[0].key)
	if !ok {
		return nil, nil
	}
	for _, seg := range segs[1:] {
		cur = step(cur, seg)
		if cur == nil {
			return nil, nil
		}
	}
	return cur, nil
}

func step(v any, seg segment) any {
	if seg.isIdx {
		switch t := v.(type) {
		case []any:
			if seg.index < len(t) {
				return t[seg.index]
			}
			return nil
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
				if seg.index < rv.Len() {
					return rv.Index(seg.index).Interface()
				}
			}
			return nil
		}
	}
	switch t := v.(type) {
	case map[string]any:
		return t[seg.key]
	case map[string]string:
		if s, ok := t[seg.key]; ok {
			return s
		}
		return nil
	case []any:
		if seg.key == "length" {
			return float64(len(t))
		}
	}
	return nil
}
