package styles

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/domain/templates"
)

// ThemeSource is the read contract for themes. A missing theme is (nil, nil).
type ThemeSource interface {
	GetTheme(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Theme, error)
}

// Theme is a decoded templates.Theme.
type Theme struct {
	ID             uuid.UUID
	DocumentStyles Style
	PageSettings   *PageSettings
	Presets        map[string]Style
}

// DecodeTheme parses the JSON columns of a stored theme.
func DecodeTheme(t *templates.Theme) (*Theme, error) {
	if t == nil {
		return nil, nil
	}
	out := &Theme{ID: t.ID, Presets: map[string]Style{}}
	if err := decodeJSON(t.DocumentStyles, &out.DocumentStyles); err != nil {
		return nil, fmt.Errorf("theme %s document styles: %w", t.ID, err)
	}
	if hasJSON(t.PageSettings) {
		var ps PageSettings
		if err := json.Unmarshal(t.PageSettings, &ps); err != nil {
			return nil, fmt.Errorf("theme %s page settings: %w", t.ID, err)
		}
		out.PageSettings = &ps
	}
	if err := decodeJSON(t.BlockStylePresets, &out.Presets); err != nil {
		return nil, fmt.Errorf("theme %s block presets: %w", t.ID, err)
	}
	return out, nil
}

// ThemeRefs are the theme ids in precedence order: the version's own
// override, the template default, the tenant default.
type ThemeRefs struct {
	VersionOverride *uuid.UUID
	TemplateDefault *uuid.UUID
	TenantDefault   *uuid.UUID
}

func (r ThemeRefs) ordered() []*uuid.UUID {
	return []*uuid.UUID{r.VersionOverride, r.TemplateDefault, r.TenantDefault}
}

// Resolved is the effective style set for one render.
type Resolved struct {
	ThemeID  *uuid.UUID
	Document Style
	Page     *PageSettings
	Presets  map[string]Style
	// Missing lists referenced themes that no longer exist and were skipped.
	Missing []uuid.UUID
}

// Block merges a named preset with inline styles; inline values win. An
// unknown preset contributes nothing.
func (r Resolved) Block(preset string, inline Style) Style {
	if preset == "" {
		return inline
	}
	return Merge(r.Presets[preset], inline)
}

type Resolver struct {
	themes ThemeSource
}

func NewResolver(themes ThemeSource) *Resolver {
	return &Resolver{themes: themes}
}

// Resolve picks the first theme in refs that exists and merges the template's
// document styles over it. Page settings come only from the theme.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, refs ThemeRefs, templateStyles Style) (Resolved, error) {
	theme, missing, err := r.effectiveTheme(ctx, tenantID, refs)
	if err != nil {
		return Resolved{}, err
	}
	out := Cascade(theme, templateStyles)
	out.Missing = missing
	return out, nil
}

func (r *Resolver) effectiveTheme(ctx context.Context, tenantID string, refs ThemeRefs) (*Theme, []uuid.UUID, error) {
	if r == nil || r.themes == nil {
		return nil, nil, nil
	}
	var missing []uuid.UUID
	for _, id := range refs.ordered() {
		if id == nil || *id == uuid.Nil {
			continue
		}
		row, err := r.themes.GetTheme(ctx, tenantID, *id)
		if err != nil {
			return nil, missing, err
		}
		if row == nil {
			missing = append(missing, *id)
			continue
		}
		theme, err := DecodeTheme(row)
		return theme, missing, err
	}
	return nil, missing, nil
}

// Cascade is the pure part of Resolve.
func Cascade(theme *Theme, templateStyles Style) Resolved {
	if theme == nil {
		return Resolved{Document: templateStyles, Presets: map[string]Style{}}
	}
	id := theme.ID
	out := Resolved{
		ThemeID:  &id,
		Document: Merge(theme.DocumentStyles, templateStyles),
		Presets:  theme.Presets,
	}
	if theme.PageSettings != nil {
		ps := *theme.PageSettings
		out.Page = &ps
	}
	if out.Presets == nil {
		out.Presets = map[string]Style{}
	}
	return out
}

func hasJSON(raw []byte) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func decodeJSON(raw []byte, into any) error {
	if !hasJSON(raw) {
		return nil
	}
	return json.Unmarshal(raw, into)
}
