package cloudsign

import (
	"path"
	"strings"
)

// fallbackFileName is used when sanitization leaves nothing of the original
// name.
const fallbackFileName = "document.pdf"

// SanitizeFileName reduces a file name to ASCII letters, digits, and ".-_",
// and coerces the extension to ".pdf". CloudSign rejects uploads whose names
// carry characters outside that set.
func SanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		return fallbackFileName
	}
	return cleaned + ".pdf"
}
