package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает продукт каталога
type Product struct {
	ID         int64
	ClientID   int64
	Name       string
	SKU        string
	Price      decimal.Decimal
	CategoryID int64

	// Attributes — структурированные атрибуты ("color", "brand", "pattern" и т.д.).
	// Значение — строка или список строк.
	Attributes map[string]any

	// Легаси-поля, заполняемые старым пайплайном; Attributes имеет приоритет.
	Color string
	Brand string

	Stock int64
	// Featured и Discount опциональны: nil означает, что каталог клиента
	// не моделирует это понятие и фактор не участвует в business score.
	Featured *bool
	Discount *decimal.Decimal

	Tags       string // список тегов через запятую
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	IsArchived bool
}

func NewProduct(clientID int64, name string, price decimal.Decimal, categoryID int64) *Product {
	return &Product{
		ClientID:   clientID,
		Name:       name,
		Price:      price,
		CategoryID: categoryID,
		IsActive:   true,
	}
}

// AttributeValue возвращает строковое значение атрибута продукта.
// Порядок поиска фиксирован: сначала структурированная карта Attributes,
// затем легаси-поля. Списки схлопываются в первое значение.
func (p *Product) AttributeValue(key string) (string, bool) {
	if p.Attributes != nil {
		if raw, ok := p.Attributes[key]; ok {
			switch v := raw.(type) {
			case string:
				if v != "" {
					return v, true
				}
			case []string:
				if len(v) > 0 {
					return v[0], true
				}
			case []any:
				if len(v) > 0 {
					if s, ok := v[0].(string); ok && s != "" {
						return s, true
					}
				}
			}
		}
	}

	switch strings.ToLower(key) {
	case "color":
		if p.Color != "" {
			return p.Color, true
		}
	case "brand":
		if p.Brand != "" {
			return p.Brand, true
		}
	}

	return "", false
}

// TagList разбирает поле Tags в срез непустых тегов.
func (p *Product) TagList() []string {
	if strings.TrimSpace(p.Tags) == "" {
		return nil
	}

	parts := strings.Split(p.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
