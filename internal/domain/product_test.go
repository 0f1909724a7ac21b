package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributeValuePrefersStructuredAttributes(t *testing.T) {
	p := &Product{
		Color: "NEGRO",
		Attributes: map[string]any{
			"color": "AZUL",
		},
	}

	value, ok := p.AttributeValue("color")
	assert.True(t, ok)
	assert.Equal(t, "AZUL", value)
}

func TestAttributeValueLegacyFallback(t *testing.T) {
	p := &Product{Color: "NEGRO", Brand: "ACME"}

	color, ok := p.AttributeValue("color")
	assert.True(t, ok)
	assert.Equal(t, "NEGRO", color)

	brand, ok := p.AttributeValue("brand")
	assert.True(t, ok)
	assert.Equal(t, "ACME", brand)

	_, ok = p.AttributeValue("material")
	assert.False(t, ok)
}

func TestAttributeValueLists(t *testing.T) {
	p := &Product{
		Attributes: map[string]any{
			"pattern":  []string{"rayas", "cuadros"},
			"material": []any{"algodon", "lino"},
		},
	}

	pattern, ok := p.AttributeValue("pattern")
	assert.True(t, ok)
	assert.Equal(t, "rayas", pattern)

	material, ok := p.AttributeValue("material")
	assert.True(t, ok)
	assert.Equal(t, "algodon", material)
}

func TestAttributeValueEmptyStringIsMiss(t *testing.T) {
	p := &Product{
		Color: "GRIS",
		Attributes: map[string]any{
			"color": "",
		},
	}

	value, ok := p.AttributeValue("color")
	assert.True(t, ok)
	assert.Equal(t, "GRIS", value)
}

func TestTagList(t *testing.T) {
	p := &Product{Tags: " verano, casual ,, playa "}

	assert.Equal(t, []string{"verano", "casual", "playa"}, p.TagList())

	empty := &Product{Tags: "  "}
	assert.Nil(t, empty.TagList())
}
