package domain

import "time"

// ColorMapping хранит выученное соответствие «сырой» цвет → канонический цвет
// для одного клиента. Пара (ClientID, RawColor) уникальна; записи не удаляются.
type ColorMapping struct {
	ID       string // uuid
	ClientID int64

	RawColor        string // цвет как он записан у клиента ("coral vibrante")
	NormalizedColor string // канонический цвет ("CORAL")
	// SimilarityGroup — группа восприятия, в которую попал цвет.
	// Группировка всегда в рамках клиента: один и тот же RawColor у разных
	// клиентов может оказаться в разных группах.
	SimilarityGroup string

	UsageCount int64
	Confidence float64

	LastUsedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

func NewColorMapping(clientID int64, rawColor, normalizedColor, similarityGroup string, confidence float64) *ColorMapping {
	return &ColorMapping{
		ClientID:        clientID,
		RawColor:        rawColor,
		NormalizedColor: normalizedColor,
		SimilarityGroup: similarityGroup,
		UsageCount:      1,
		Confidence:      confidence,
	}
}
