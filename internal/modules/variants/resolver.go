package variants

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/domain/templates"
)

const (
	requiredWeight = 100
	optionalWeight = 10
)

var (
	ErrNoVariants       = errors.New("template has no variants")
	ErrNoDefaultVariant = errors.New("no variant matches the required attributes and the template has no default variant")
)

// AmbiguousVariantError is returned when several variants share the top
// score. Callers must add attributes that tell them apart.
type AmbiguousVariantError struct {
	Score      int
	VariantIDs []uuid.UUID
}

func (e *AmbiguousVariantError) Error() string {
	ids := make([]string, 0, len(e.VariantIDs))
	for _, id := range e.VariantIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("ambiguous variant selection: %d variants tie at score %d (%s)", len(ids), e.Score, strings.Join(ids, ", "))
}

// Criteria are the attributes a caller asks for.
type Criteria struct {
	Required map[string]string
	Optional map[string]string
}

// Score is 100 per matched required attribute plus 10 per matched optional
// attribute.
func Score(attrs map[string]string, c Criteria) int {
	return requiredWeight*matches(attrs, c.Required) + optionalWeight*matches(attrs, c.Optional)
}

// Resolve selects the best variant among candidates.
//
// Candidates must match every required attribute. When none does, the
// template's default variant is used. Among matching candidates the unique
// highest score wins; a tie is an error rather than an arbitrary pick.
func Resolve(candidates []*templates.Variant, c Criteria) (*templates.Variant, error) {
	if len(candidates) == 0 {
		return nil, ErrNoVariants
	}

	type scored struct {
		v     *templates.Variant
		score int
	}
	var matching []scored
	for _, v := range candidates {
		if v == nil {
			continue
		}
		attrs := v.AttributeMap()
		if matches(attrs, c.Required) != len(c.Required) {
			continue
		}
		matching = append(matching, scored{v: v, score: Score(attrs, c)})
	}

	if len(matching) == 0 {
		for _, v := range candidates {
			if v != nil && v.IsDefault {
				return v, nil
			}
		}
		return nil, ErrNoDefaultVariant
	}

	sort.SliceStable(matching, func(i, j int) bool { return matching[i].score > matching[j].score })
	best := matching[0].score
	var tied []uuid.UUID
	for _, m := range matching {
		if m.score != best {
			break
		}
		tied = append(tied, m.v.ID)
	}
	if len(tied) > 1 {
		sort.Slice(tied, func(i, j int) bool { return tied[i].String() < tied[j].String() })
		return nil, &AmbiguousVariantError{Score: best, VariantIDs: tied}
	}
	return matching[0].v, nil
}

func matches(attrs, want map[string]string) int {
	n := 0
	for k, v := range want {
		if got, ok := attrs[k]; ok && got == v {
			n++
		}
	}
	return n
}
