package moderation

import "github.com/abadojack/whatlanggo"

// DetectLanguage returns the ISO-639-1 code of content, or "" when the
// text is too short or ambiguous to tell.
func DetectLanguage(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
