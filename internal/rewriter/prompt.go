package rewriter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const systemPrompt = `You write SEO copy for a Turkish e-commerce catalog.
Answer with a single JSON object and nothing else, using these keys:
"title" (max 70 characters), "keywords" (comma separated, max 10),
"description" (max 160 characters), "slug" (lowercase, hyphenated, ASCII),
"category" (one short catalog category name, may be empty).
Write the copy in Turkish.`

func userPrompt(name string) string {
	return fmt.Sprintf("Product name: %s", strings.TrimSpace(name))
}

type rawResult struct {
	Title       string          `json:"title"`
	Keywords    json.RawMessage `json:"keywords"`
	Description string          `json:"description"`
	Slug        string          `json:"slug"`
	Category    string          `json:"category"`
}

// parseResult decodes a model answer. Code fences around the JSON are tolerated
// and keywords may be a string or a list.
func parseResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decode rewrite result: %w", err)
	}

	res := &Result{
		Title:       strings.TrimSpace(raw.Title),
		Keywords:    parseKeywords(raw.Keywords),
		Description: strings.TrimSpace(raw.Description),
		Category:    strings.TrimSpace(raw.Category),
	}
	if res.Title == "" {
		return nil, nil
	}

	if s := strings.TrimSpace(raw.Slug); s != "" {
		res.Slug = slug.MakeLang(s, "tr")
	}
	return res, nil
}

func parseKeywords(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		return strings.Join(list, ", ")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
