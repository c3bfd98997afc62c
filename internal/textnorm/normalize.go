// Package textnorm turns raw notification email bodies into plain searchable text.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	softBreakPattern = regexp.MustCompile(`=\r?\n`)
	entityPattern    = regexp.MustCompile(`&(#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[a-zA-Z]{2,8});`)
	stylePattern     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptPattern    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
)

var entities = map[string]string{
	"nbsp":   " ",
	"amp":    "&",
	"lt":     "<",
	"gt":     ">",
	"quot":   `"`,
	"apos":   "'",
	"aacute": "á",
	"eacute": "é",
	"iacute": "í",
	"oacute": "ó",
	"uacute": "ú",
	"Aacute": "Á",
	"Eacute": "É",
	"Iacute": "Í",
	"Oacute": "Ó",
	"Uacute": "Ú",
	"ntilde": "ñ",
	"Ntilde": "Ñ",
	"uuml":   "ü",
	"iquest": "¿",
	"iexcl":  "¡",
	"copy":   "©",
	"reg":    "®",
	"middot": "·",
	"ndash":  "-",
	"mdash":  "-",
}

// Normalize decodes quoted-printable escapes and HTML entities, strips markup
// and collapses whitespace. It never fails; unrecognized sequences are kept as-is.
//
// Decoding repeats until the text stops changing, so double-encoded bodies are
// fully unwrapped and Normalize(Normalize(s)) == Normalize(s). Every decoding
// step that changes the text also shortens it, which bounds the loop.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := normalizeOnce(raw)
	for {
		next := normalizeOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func normalizeOnce(s string) string {
	s = DecodeQuotedPrintable(s)
	s = DecodeEntities(s)
	s = StripTags(s)
	return CollapseSpace(s)
}

// DecodeQuotedPrintable removes soft line breaks and decodes =XX escapes.
// Escape runs that do not form valid UTF-8 are read as ISO-8859-1.
func DecodeQuotedPrintable(s string) string {
	s = softBreakPattern.ReplaceAllString(s, "")
	if !strings.Contains(s, "=") {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))

	for i := 0; i < len(s); {
		run, next := escapeRun(s, i)
		if len(run) == 0 {
			out.WriteByte(s[i])
			i++
			continue
		}
		out.WriteString(decodeRun(run))
		i = next
	}

	return out.String()
}

// escapeRun collects consecutive =XX escapes starting at i.
func escapeRun(s string, i int) ([]byte, int) {
	var run []byte
	for i+2 < len(s) && s[i] == '=' && isUpperHex(s[i+1]) && isUpperHex(s[i+2]) {
		b, _ := strconv.ParseUint(s[i+1:i+3], 16, 8)
		run = append(run, byte(b))
		i += 3
	}
	return run, i
}

func decodeRun(run []byte) string {
	if utf8.Valid(run) {
		return string(run)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(run)
	if err != nil {
		return string(run)
	}
	return string(decoded)
}

func isUpperHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

// DecodeEntities replaces the named entities this package knows plus numeric
// character references. Unknown entities are left untouched.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if strings.HasPrefix(name, "#") {
			return decodeNumericEntity(name[1:], m)
		}
		if v, ok := entities[name]; ok {
			return v
		}
		return m
	})
}

func decodeNumericEntity(ref, original string) string {
	base := 10
	if strings.HasPrefix(ref, "x") || strings.HasPrefix(ref, "X") {
		base = 16
		ref = ref[1:]
	}
	n, err := strconv.ParseUint(ref, base, 32)
	if err != nil || n == 0 || !utf8.ValidRune(rune(n)) {
		return original
	}
	if n == 0xA0 {
		return " "
	}
	return string(rune(n))
}

// StripTags drops style and script blocks and replaces every remaining tag with a space.
func StripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	s = stylePattern.ReplaceAllString(s, " ")
	s = scriptPattern.ReplaceAllString(s, " ")
	return tagPattern.ReplaceAllString(s, " ")
}

// CollapseSpace replaces whitespace runs with a single space and trims the result.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
