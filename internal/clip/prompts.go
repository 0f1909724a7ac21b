package clip

import (
	"fmt"
	"strings"
)

// maxContextualPrompts ограничивает число контекстных промптов на изображение:
// каждый промпт — отдельный проход инференса.
const maxContextualPrompts = 3

// industryPrompts — шаблоны промптов по индустриям; "%s" — имя категории.
// Неизвестная индустрия использует general.
var industryPrompts = map[string][]string{
	"textil": {
		"a high quality photo of %s clothing",
		"fashion product photography of %s",
	},
	"calzado": {
		"a professional photo of %s footwear",
		"product photography of %s shoes",
	},
	"general": {
		"a product photo of %s",
		"commercial photography of %s",
	},
}

// PromptContext — контекст каталога, из которого собираются промпты.
type PromptContext struct {
	Industry            string
	CategoryName        string
	CategoryPrompt      string // Category.ClipPrompt, может быть пустым
	ConfidenceThreshold float64
	Tags                []string
}

// buildPrompts собирает до maxContextualPrompts контекстных промптов:
// до двух индустриальных шаблонов, затем промпт категории, затем промпт тегов.
func buildPrompts(pc *PromptContext) []string {
	category := strings.ToLower(strings.TrimSpace(pc.CategoryName))
	if category == "" {
		return nil
	}

	templates, ok := industryPrompts[strings.ToLower(pc.Industry)]
	if !ok {
		templates = industryPrompts["general"]
	}

	prompts := make([]string, 0, maxContextualPrompts)
	for _, tpl := range templates {
		if len(prompts) == 2 {
			break
		}
		prompts = append(prompts, fmt.Sprintf(tpl, category))
	}

	if pc.CategoryPrompt != "" && len(prompts) < maxContextualPrompts {
		prompts = append(prompts, pc.CategoryPrompt)
	}

	if len(pc.Tags) > 0 && len(prompts) < maxContextualPrompts {
		tags := pc.Tags
		if len(tags) > 3 {
			tags = tags[:3]
		}
		prompts = append(prompts, fmt.Sprintf("a %s that is %s", category, strings.Join(tags, ", ")))
	}

	return prompts
}
