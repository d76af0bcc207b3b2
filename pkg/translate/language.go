package translate

import (
	"sort"
	"strings"
)

const (
	// LangEnglish is the English target language code.
	LangEnglish = "en"
	// LangChinese is the (simplified) Chinese target language code.
	LangChinese = "zh"
)

var supportedLanguages = map[string]bool{
	LangEnglish: true,
	LangChinese: true,
}

// IsSupported reports whether lang is one of the supported target languages.
// The check is exact: "zh-CN" is not supported, use LanguageMapper first.
func IsSupported(lang string) bool {
	return supportedLanguages[lang]
}

// SupportedLanguages returns the supported target language codes, sorted.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(supportedLanguages))
	for lang := range supportedLanguages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// LanguageMapper handles conversion between client-supplied language tags and
// the codes used internally. Mobile clients send tags like "zh-CN", "zh_SG" or
// "EN", while the cache and the engines use "zh" and "en".
type LanguageMapper struct{}

// NewLanguageMapper creates a new language mapper instance.
func NewLanguageMapper() *LanguageMapper {
	return &LanguageMapper{}
}

// ToBackendCode converts a client language tag to a backend code.
// Examples:
//   - "EN" -> "en"
//   - "zh-CN" -> "zh"
//   - "zh_Hans_SG" -> "zh"
func (lm *LanguageMapper) ToBackendCode(tag string) string {
	lang := strings.ToLower(strings.TrimSpace(tag))

	// Extract base language (before any "-" or "_")
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}

	return lang
}

// ToLibreTranslateCode converts an internal code to the code LibreTranslate expects.
func (lm *LanguageMapper) ToLibreTranslateCode(lang string) string {
	switch lang {
	case LangChinese:
		return "zh-Hans"
	default:
		return lang
	}
}

// DisplayName returns the language name used in LLM instructions.
func (lm *LanguageMapper) DisplayName(lang string) string {
	switch lang {
	case LangChinese:
		return "Simplified Chinese"
	case LangEnglish:
		return "English"
	default:
		return lang
	}
}
