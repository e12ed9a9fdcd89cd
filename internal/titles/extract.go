package titles

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	mentionRe    = regexp.MustCompile(`<@[A-Za-z0-9_]+>|@[A-Za-z0-9_.]+`)
	messageIDRe  = regexp.MustCompile(`\[msg:[^\]]*\]`)
	slashCmdRe   = regexp.MustCompile(`(?i)^/[a-z0-9_]+(\s|$)`)

	// Platform placeholder tokens for media, stickers and file attachments.
	// Surrounding human text is preserved.
	mediaTokenRe = regexp.MustCompile(`(?i)<media:[^>]*>|\[Slack file:[^\]]*\]|\[(?:Image|Video|Sticker|Attachment|Audio|File|GIF)\]`)
)

// lowSignalPhrases are greetings and fillers that never make a useful title
var lowSignalPhrases = map[string]bool{
	"hi":    true,
	"hello": true,
	"hey":   true,
	"yo":    true,
	"ok":    true,
	"okay":  true,
	"test":  true,
	"ping":  true,
}

// controlPhrases are recognized bot control commands spelled without a slash
var controlPhrases = map[string]bool{
	"new chat":  true,
	"reset":     true,
	"stop":      true,
	"cancel":    true,
	"undo":      true,
	"help":      true,
	"status":    true,
	"subscribe": true,
}

const minTitleLen = 3

// Extract derives a deterministic title from message text. It tries primary
// then fallback; the first candidate surviving all rejection rules wins.
// Returns false when neither candidate yields a usable title.
func Extract(primary, fallback string, maxChars int) (string, bool) {
	for _, raw := range []string{primary, fallback} {
		if title, ok := extractOne(raw, maxChars); ok {
			return title, true
		}
	}
	return "", false
}

func extractOne(raw string, maxChars int) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	text = mentionRe.ReplaceAllString(text, " ")
	text = messageIDRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return "", false
	}

	if slashCmdRe.MatchString(text) {
		return "", false
	}
	lower := strings.ToLower(text)
	if lowSignalPhrases[lower] || controlPhrases[lower] {
		return "", false
	}

	// Strip media placeholders, keeping any surrounding human text.
	text = mediaTokenRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return "", false
	}

	text = strings.TrimRight(text, ".,;:!?-–— ")
	text = truncateRunes(text, maxChars)
	text = strings.TrimRight(text, ".,;:!?-–— ")

	if len([]rune(text)) < minTitleLen {
		return "", false
	}
	return text, true
}

// truncateRunes caps a string at max runes without splitting a rune
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n >= max {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return strings.TrimSpace(s)
}
