package colors

import (
	"context"
	"errors"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// MappingStore хранит выученные соответствия цветов клиента.
type MappingStore interface {
	// Mapping возвращает e.ErrColorMappingNotFound, если пары ещё нет.
	Mapping(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error)
	SaveMapping(ctx context.Context, mapping *domain.ColorMapping) (*domain.ColorMapping, error)
	IncrementUsage(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error)
	// GroupColors — существующие группы клиента и канонические цвета в них.
	GroupColors(ctx context.Context, clientID int64) (map[string][]string, error)
}

// Learning ведёт клиентский словарь цветов: каждая встреченная пара
// (клиент, сырой цвет) получает канонический цвет и группу похожести.
// Группировка всегда в рамках клиента.
type Learning struct {
	store      MappingStore
	normalizer *Normalizer
	logger     logger.Logger
}

func NewLearning(store MappingStore, normalizer *Normalizer, logger logger.Logger) *Learning {
	return &Learning{store: store, normalizer: normalizer, logger: logger}
}

// ProcessColor возвращает соответствие для сырого цвета, создавая его при
// первой встрече и увеличивая счётчик использования при повторных.
func (l *Learning) ProcessColor(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error) {
	const op = "colors.Learning.ProcessColor"

	rawColor = strings.TrimSpace(rawColor)
	if rawColor == "" {
		return nil, e.Wrap(op, e.ErrEmptyQuery)
	}

	if _, err := l.store.Mapping(ctx, clientID, rawColor); err == nil {
		updated, err := l.store.IncrementUsage(ctx, clientID, rawColor)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		return updated, nil
	} else if !errors.Is(err, e.ErrColorMappingNotFound) {
		return nil, e.Wrap(op, err)
	}

	canonical, fromTable, err := l.normalizer.resolve(ctx, rawColor)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if canonical == "" {
		// нераспознанный цвет сохраняется под собственным именем,
		// чтобы счётчик всё равно накапливался
		canonical = strings.ToUpper(Clean(rawColor))
		if canonical == "" {
			return nil, e.Wrap(op, e.ErrEmptyQuery)
		}
	}

	// словарные попадания достоверны; результат семантического фолбэка
	// и самоназванные цвета ещё не подтверждены использованием
	confidence := 0.0
	if fromTable {
		confidence = 1.0
	}

	group, err := l.assignGroup(ctx, clientID, canonical)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	mapping := domain.NewColorMapping(clientID, rawColor, canonical, group, confidence)
	saved, err := l.store.SaveMapping(ctx, mapping)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	l.logger.Debugf("color learned: client=%d raw=%q canonical=%s group=%s", clientID, rawColor, canonical, group)
	return saved, nil
}

// assignGroup выбирает группу похожести: сначала жёсткие перцептивные группы,
// затем существующие группы клиента по близости, иначе новая группа
// с именем самого цвета.
func (l *Learning) assignGroup(ctx context.Context, clientID int64, canonical string) (string, error) {
	if group := GroupOf(canonical); group != "" {
		return group, nil
	}

	groups, err := l.store.GroupColors(ctx, clientID)
	if err != nil {
		return "", err
	}

	for group, members := range groups {
		for _, member := range members {
			similar, err := l.normalizer.AreSimilar(ctx, canonical, member)
			if err != nil {
				l.logger.Warnf("group similarity check %q vs %q: %v", canonical, member, err)
				continue
			}
			if similar {
				return group, nil
			}
		}
	}

	return canonical, nil
}
