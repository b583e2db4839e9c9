package datacontract

import (
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ViolationError lists every way a payload fails its template's schema.
type ViolationError struct {
	Problems []string
}

func (e *ViolationError) Error() string {
	return "data validation failed: " + strings.Join(e.Problems, "; ")
}

// Validate unifies data with the CUE schema in src and requires the result
// to be concrete. An empty schema accepts anything.
//
// cue.Context is not safe for concurrent use, so each call builds its own.
func Validate(src string, data map[string]any) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(src, cue.Filename("data_schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile data schema: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	value := ctx.Encode(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return violations(err)
	}
	return nil
}

// Check compiles src without data, for rejecting broken schemas early.
func Check(src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	v := cuecontext.New().CompileString(src, cue.Filename("data_schema.cue"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile data schema: %w", err)
	}
	return nil
}

func violations(err error) error {
	seen := map[string]bool{}
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		msg := e.Error()
		if seen[msg] {
			continue
		}
		seen[msg] = true
		problems = append(problems, msg)
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	sort.Strings(problems)
	return &ViolationError{Problems: problems}
}
