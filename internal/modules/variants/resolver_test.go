package variants

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/docforge-backend/internal/domain/templates"
)

func variant(title string, isDefault bool, attrs map[string]string) *templates.Variant {
	raw, _ := json.Marshal(attrs)
	return &templates.Variant{ID: uuid.New(), Title: title, IsDefault: isDefault, Attributes: datatypes.JSON(raw)}
}

func TestResolvePicksHighestScore(t *testing.T) {
	nl := variant("nl", false, map[string]string{"language": "nl"})
	nlFormal := variant("nl-formal", false, map[string]string{"language": "nl", "tone": "formal"})
	en := variant("en", true, map[string]string{"language": "en"})

	got, err := Resolve([]*templates.Variant{nl, nlFormal, en}, Criteria{
		Required: map[string]string{"language": "nl"},
		Optional: map[string]string{"tone": "formal"},
	})
	require.NoError(t, err)
	assert.Equal(t, nlFormal.ID, got.ID)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	nl := variant("nl", false, map[string]string{"language": "nl"})
	en := variant("en", true, map[string]string{"language": "en"})

	got, err := Resolve([]*templates.Variant{nl, en}, Criteria{Required: map[string]string{"language": "de"}})
	require.NoError(t, err)
	assert.Equal(t, en.ID, got.ID)
}

func TestResolveWithoutDefaultFails(t *testing.T) {
	nl := variant("nl", false, map[string]string{"language": "nl"})

	_, err := Resolve([]*templates.Variant{nl}, Criteria{Required: map[string]string{"language": "de"}})
	assert.ErrorIs(t, err, ErrNoDefaultVariant)

	_, err = Resolve(nil, Criteria{})
	assert.ErrorIs(t, err, ErrNoVariants)
}

func TestResolveTieIsAmbiguous(t *testing.T) {
	a := variant("a", false, map[string]string{"language": "nl", "brand": "x"})
	b := variant("b", false, map[string]string{"language": "nl", "brand": "y"})

	_, err := Resolve([]*templates.Variant{a, b}, Criteria{
		Required: map[string]string{"language": "nl"},
		Optional: map[string]string{"tone": "formal"},
	})
	var amb *AmbiguousVariantError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, 100, amb.Score)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, amb.VariantIDs)
}

func TestResolveNoCriteriaSingleCandidate(t *testing.T) {
	only := variant("only", true, nil)
	got, err := Resolve([]*templates.Variant{only}, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, only.ID, got.ID)
}

func TestScore(t *testing.T) {
	attrs := map[string]string{"language": "nl", "tone": "formal", "brand": "x"}
	assert.Equal(t, 210, Score(attrs, Criteria{
		Required: map[string]string{"language": "nl", "brand": "x"},
		Optional: map[string]string{"tone": "formal", "region": "eu"},
	}))
}
