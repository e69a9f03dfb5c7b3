package countdown

import (
	"strings"
	"time"
	"unicode"
)

const defaultBaseName = "clipton-video"

// Filename derives the download name from the text settings. With a zero
// timestamp the result depends on the settings alone.
func Filename(s Settings, ext string, ts time.Time) string {
	base := slug(strings.Join([]string{s.Title, s.HighlightWord, s.EndingText}, " "))
	if base == "" {
		base = defaultBaseName
	}
	if !ts.IsZero() {
		base += "-" + ts.Format("20060102-150405")
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base
	}
	return base + "." + slug(ext)
}

func slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r) || r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
