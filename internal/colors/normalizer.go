// Package colors приводит свободный текст цветов каталога к небольшому
// каноническому словарю и обучает клиентские соответствия.
package colors

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// DefaultSimilarityThreshold — порог косинусной близости эмбеддингов,
// начиная с которого два цвета считаются похожими.
const DefaultSimilarityThreshold = 0.85

// minSemanticLength — минимальная длина очищенного текста для обращения
// к внешнему семантическому нормализатору.
const minSemanticLength = 3

// SemanticNormalizer — внешний сервис, приводящий неизвестный цвет
// к каноническому имени. Вызов сетевой, без ретраев.
type SemanticNormalizer interface {
	NormalizeColor(ctx context.Context, cleaned string) (string, error)
}

// TextEmbedder строит эмбеддинг текста для сравнения цветов по близости.
type TextEmbedder interface {
	EmbedColor(ctx context.Context, text string) ([]float32, error)
}

// colorEntry — одна строка словаря: любой из substrings в очищенном тексте
// даёт канонический цвет. Порядок записей важен: более специфичные раньше.
type colorEntry struct {
	substrings []string
	canonical  string
}

var colorTable = []colorEntry{
	{[]string{"azul", "celeste", "marino", "jean", "denim"}, "AZUL"},
	{[]string{"turquesa", "petroleo", "cyan", "cian"}, "TURQUESA"},
	{[]string{"negr"}, "NEGRO"},
	{[]string{"blanc", "hueso"}, "BLANCO"},
	{[]string{"gris", "plomo"}, "GRIS"},
	{[]string{"platead", "plata"}, "PLATEADO"},
	{[]string{"roj", "vino", "granate", "burdeo"}, "ROJO"},
	{[]string{"verde", "oliva", "militar"}, "VERDE"},
	{[]string{"amarill", "mostaza"}, "AMARILLO"},
	{[]string{"dorad", "oro"}, "DORADO"},
	{[]string{"naranja"}, "NARANJA"},
	{[]string{"marron", "habano", "chocolate", "castano", "cafe", "camel"}, "MARRON"},
	{[]string{"beige", "crema", "arena", "nude"}, "BEIGE"},
	{[]string{"morad", "violeta", "purpura", "lila"}, "MORADO"},
	{[]string{"rosa", "fucsia"}, "ROSA"},
}

// perceptualGroups — цвета, неразличимые для покупателя на уровне поиска.
// Имя группы — первый член по алфавиту.
var perceptualGroups = map[string][]string{
	"AMARILLO": {"AMARILLO", "DORADO"},
	"AZUL":     {"AZUL", "TURQUESA"},
	"BEIGE":    {"BEIGE", "MARRON"},
	"GRIS":     {"GRIS", "PLATEADO"},
	"MORADO":   {"MORADO", "ROSA"},
}

// Normalizer — двухуровневый нормализатор цветов: статический словарь,
// затем внешний семантический фолбэк с кэшем на время жизни процесса.
type Normalizer struct {
	semantic SemanticNormalizer // может быть nil
	embedder TextEmbedder       // может быть nil
	logger   logger.Logger

	threshold float64

	mu            sync.RWMutex
	semanticCache map[string]string
}

func NewNormalizer(semantic SemanticNormalizer, embedder TextEmbedder, logger logger.Logger) *Normalizer {
	return &Normalizer{
		semantic:      semantic,
		embedder:      embedder,
		logger:        logger,
		threshold:     DefaultSimilarityThreshold,
		semanticCache: make(map[string]string),
	}
}

// Normalize возвращает канонический цвет или пустую строку, если текст
// не распознан. Ошибка возможна только на пути внешнего фолбэка.
func (n *Normalizer) Normalize(ctx context.Context, text string) (string, error) {
	canonical, _, err := n.resolve(ctx, text)
	return canonical, err
}

// resolve — как Normalize, дополнительно сообщает, решил ли запрос
// статический словарь (а не семантический фолбэк).
func (n *Normalizer) resolve(ctx context.Context, text string) (canonical string, fromTable bool, err error) {
	const op = "colors.Normalizer.resolve"

	cleaned := Clean(text)
	if cleaned == "" {
		return "", false, nil
	}

	if canonical := lookupTable(cleaned); canonical != "" {
		return canonical, true, nil
	}

	if len([]rune(cleaned)) < minSemanticLength || n.semantic == nil {
		return "", false, nil
	}

	n.mu.RLock()
	cached, ok := n.semanticCache[cleaned]
	n.mu.RUnlock()
	if ok {
		return cached, false, nil
	}

	resolved, err := n.semantic.NormalizeColor(ctx, cleaned)
	if err != nil {
		return "", false, e.Wrap(op, err)
	}
	resolved = strings.ToUpper(strings.TrimSpace(resolved))

	n.mu.Lock()
	n.semanticCache[cleaned] = resolved
	n.mu.Unlock()

	return resolved, false, nil
}

// AreSimilar сравнивает два цвета: равенство без регистра, затем равенство
// канонических имён, затем общая перцептивная группа, затем косинусная
// близость эмбеддингов. Решение фолбэка логируется, остальные — нет.
func (n *Normalizer) AreSimilar(ctx context.Context, colorA, colorB string) (bool, error) {
	if strings.EqualFold(strings.TrimSpace(colorA), strings.TrimSpace(colorB)) {
		return true, nil
	}

	canonA, _, err := n.resolve(ctx, colorA)
	if err != nil {
		return false, err
	}
	canonB, _, err := n.resolve(ctx, colorB)
	if err != nil {
		return false, err
	}

	if canonA != "" && canonA == canonB {
		return true, nil
	}

	if canonA != "" && canonB != "" {
		groupA, groupB := GroupOf(canonA), GroupOf(canonB)
		if groupA != "" && groupA == groupB {
			return true, nil
		}
	}

	if n.embedder == nil {
		return false, nil
	}

	vecA, err := n.embedder.EmbedColor(ctx, strings.ToLower(colorA))
	if err != nil {
		return false, err
	}
	vecB, err := n.embedder.EmbedColor(ctx, strings.ToLower(colorB))
	if err != nil {
		return false, err
	}

	cos, err := domain.Cosine(vecA, vecB)
	if err != nil {
		return false, err
	}

	similar := cos >= n.threshold
	n.logger.Debugf("color similarity fallback: %q vs %q cos=%.3f similar=%v", colorA, colorB, cos, similar)
	return similar, nil
}

// GroupOf возвращает имя перцептивной группы канонического цвета
// или пустую строку, если цвет ни в одну группу не входит.
func GroupOf(canonical string) string {
	for name, members := range perceptualGroups {
		for _, m := range members {
			if m == canonical {
				return name
			}
		}
	}
	return ""
}

// Clean приводит текст цвета к виду для словаря: нижний регистр,
// без диакритики, только буквы и пробелы.
func Clean(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}

	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func lookupTable(cleaned string) string {
	for _, entry := range colorTable {
		for _, sub := range entry.substrings {
			if strings.Contains(cleaned, sub) {
				return entry.canonical
			}
		}
	}
	return ""
}
