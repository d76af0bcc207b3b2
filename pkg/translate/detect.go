package translate

import "strings"

// DetectLanguage classifies text as Chinese ("zh") when it contains at least one
// CJK Unified Ideograph (U+4E00..U+9FFF), and as English ("en") otherwise.
func DetectLanguage(text string) string {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return LangChinese
		}
	}
	return LangEnglish
}

// NeedsTranslation decides whether text is eligible for translation into targetLang.
// Empty or whitespace-only text never is; force bypasses the same-language skip.
func NeedsTranslation(text, targetLang string, force bool) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if force {
		return true
	}
	return DetectLanguage(text) != targetLang
}
