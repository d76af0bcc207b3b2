package translate

import (
	"encoding/json"
	"fmt"
	"strings"
)

const basePrompt = `You are a translator for a Singapore community events app.
Translate every string in the JSON array provided by the user into %s.

Rules:
%s
- Keep numeric identifiers exactly as written in the source: bus stop numbers, block numbers,
  street addresses, unit numbers (e.g. #03-12) and postal codes must stay in their original script
  regardless of the target language.
- Preserve line breaks and punctuation. Do not add explanations, notes or quotes.

Respond ONLY with a JSON object of the form {"translations": ["...", "..."]}.
The "translations" array must contain exactly %d strings, in the same order as the input.`

const chineseRules = `- Render place names as the Chinese name, a single space, then the original English name,
  for example "Tampines Mall" -> "淡滨尼商场 Tampines Mall" and "Bishan MRT" -> "碧山地铁站 Bishan MRT".
- Translate every word of the place type (Mall, Park, Community Club, MRT, Interchange, Road).
  Never leave part of a place name transliterated or untranslated.`

const englishRules = `- The output must be pure English. Do not leave any Chinese characters in the result,
  including place names: use the official English name of the place.`

// Prompt holds the two messages sent to a chat-completions style engine.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt constructs the translation instruction for a batch of texts.
// The texts are embedded as a JSON array so that the model can return a
// positional array of the same length.
func BuildPrompt(texts []string, targetLang string) (Prompt, error) {
	rules := englishRules
	if targetLang == LangChinese {
		rules = chineseRules
	}

	payload, err := json.Marshal(texts)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode texts: %w", err)
	}

	system := fmt.Sprintf(basePrompt, NewLanguageMapper().DisplayName(targetLang), rules, len(texts))
	return Prompt{
		System: strings.TrimSpace(system),
		User:   string(payload),
	}, nil
}
