package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Completion is a blocking text-to-text transform backed by an LLM.
// The converter consumes it as an opaque capability.
type Completion func(ctx context.Context, system, prompt string) (string, error)

// IngredientGroup is one category of ingredients with quantities.
type IngredientGroup struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

// Step is a single numbered cooking instruction.
type Step struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// Recipe is the structured form of a chat-authored recipe.
type Recipe struct {
	Title       string            `json:"title"`
	Servings    int               `json:"servings"`
	CookTime    int               `json:"cookTime"` // minutes
	Difficulty  string            `json:"difficulty"`
	Ingredients []IngredientGroup `json:"ingredients"`
	Steps       []Step            `json:"steps"`
	Tips        []string          `json:"tips"`
	Image       string            `json:"image,omitempty"`
}

// Converter turns free-text recipes into structured Recipe records using a
// temperature-zero LLM call. The conversion must not invent content: the
// system instruction pins the model to restructuring only.
type Converter struct {
	complete Completion
	logger   *slog.Logger
}

// NewConverter creates a Converter on top of the given completion capability.
func NewConverter(complete Completion, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{complete: complete, logger: logger}
}

const convertSystemPrompt = `너는 레시피 텍스트를 정확하게 구조화된 JSON으로 변환하는 전문가야.
주어진 레시피 텍스트의 내용을 절대 변경하거나 추가하지 말고, 있는 그대로 구조화만 해줘.
텍스트에 없는 정보는 추측하지 말고, 있는 정보만 사용해.`

// Convert restructures recipeText into a Recipe. dishName is used as the
// title fallback; allergies and level are echoed into the tips so the
// structured output records what the recipe already accounts for.
func (c *Converter) Convert(ctx context.Context, recipeText, dishName string, allergies []string, level string) (*Recipe, error) {
	prompt := buildConvertPrompt(recipeText, dishName, allergies, level)

	raw, err := c.complete(ctx, convertSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("converting recipe structure: %w", err)
	}

	var out Recipe
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		c.logger.Error("parsing structured recipe", "error", err, "response_len", len(raw))
		return nil, fmt.Errorf("parsing structured recipe JSON: %w", err)
	}

	if out.Title == "" {
		out.Title = dishName
	}
	return &out, nil
}

func buildConvertPrompt(recipeText, dishName string, allergies []string, level string) string {
	allergyInfo := "없음"
	if len(allergies) > 0 {
		allergyInfo = strings.Join(allergies, ", ")
	}

	return fmt.Sprintf(`다음은 채팅에서 생성된 %q 레시피야.
이 레시피를 아래 JSON 형식으로 정확하게 변환해줘.

**중요**:
- 레시피 내용을 절대 변경하거나 추가하지 마
- 텍스트에 있는 정보만 사용해
- 정보가 없으면 합리적인 기본값 사용 (예: 인분=2, 조리시간=30)

[사용자 정보]
- 알레르기: %s
- 요리 레벨: %s

[레시피 텍스트]
%s

[변환할 JSON 형식]
{
    "title": "<레시피 제목 (없으면 %q)>",
    "servings": <인분 (없으면 2)>,
    "cookTime": <조리 시간(분) (없으면 30)>,
    "difficulty": "<beginner/intermediate/advanced 중 하나>",
    "ingredients": [
        {"category": "주재료", "items": ["재료1 용량", "재료2 용량"]},
        {"category": "양념/향신료", "items": ["양념1 용량"]}
    ],
    "steps": [
        {"step": 1, "description": "<조리 순서 1 - 원본 텍스트 그대로>"}
    ],
    "tips": ["알레르기 정보: %s를 고려하여 레시피 작성됨"]
}

JSON만 출력해줘:`, dishName, allergyInfo, level, recipeText, dishName, allergyInfo)
}

// stripCodeFence removes a surrounding markdown code block, if present.
// LLMs frequently wrap JSON output in ```json fences despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
