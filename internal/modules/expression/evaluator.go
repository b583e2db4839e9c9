package expression

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	jsonata "github.com/blues/jsonata-go"
)

type Language string

const (
	LanguageAuto    Language = ""
	LanguageSimple  Language = "simple"
	LanguageJSONata Language = "jsonata"
)

// ParseLanguage maps a node's "language" prop. Unknown values mean auto.
func ParseLanguage(raw string) Language {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "simple", "path":
		return LanguageSimple
	case "jsonata":
		return LanguageJSONata
	default:
		return LanguageAuto
	}
}

// JSONataEvaluator runs query-language expressions against the flattened
// scope. An expression with no result is nil without error.
type JSONataEvaluator struct{}

func (JSONataEvaluator) Evaluate(expr string, scope *Scope) (any, error) {
	compiled, err := jsonata.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	out, err := compiled.Eval(scope.Flatten())
	if errors.Is(err, jsonata.ErrUndefined) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return out, nil
}

// Evaluator dispatches between the path and query-language evaluators.
type Evaluator struct {
	Path    PathEvaluator
	JSONata JSONataEvaluator
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs expr in scope. In auto mode simple paths take the path
// evaluator and everything else goes to JSONata. An empty expression is nil.
func (e *Evaluator) Evaluate(expr string, lang Language, scope *Scope) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	switch lang {
	case LanguageSimple:
		return e.Path.Evaluate(expr, scope)
	case LanguageJSONata:
		return e.JSONata.Evaluate(expr, scope)
	default:
		if IsSimplePath(expr) {
			return e.Path.Evaluate(expr, scope)
		}
		return e.JSONata.Evaluate(expr, scope)
	}
}

// Truthy follows the query language's boolean casting: nil, false, 0, "",
// and empty arrays or objects are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case []any:
		for _, x := range t {
			if Truthy(x) {
				return true
			}
		}
		return false
	case map[string]any:
		return len(t) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Stringify renders a value for interpolation. nil is the empty string and
// whole numbers print without a fraction.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ErrNotIterable is returned by Iterate for scalars and objects.
var ErrNotIterable = errors.New("value is not iterable")

// Iterate returns the elements of an array value. nil has no elements.
func Iterate(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotIterable, v)
}
