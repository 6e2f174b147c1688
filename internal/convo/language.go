package convo

import "strings"

// Language is a locale tag forwarded unchanged to every remote service for a
// turn.
type Language string

const (
	Hindi   Language = "hi-IN"
	English Language = "en-IN"
	Kannada Language = "kn-IN"
)

// DefaultLanguage is used whenever a tag is missing or unrecognized.
const DefaultLanguage = Hindi

// Languages lists the supported selections in display order.
var Languages = []Language{Hindi, English, Kannada}

// ParseLanguage maps a tag ("hi-IN", "hi", "HI_in", ...) to a supported
// Language. Unknown values fall back to DefaultLanguage rather than failing.
func ParseLanguage(s string) Language {
	tag := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		tag = tag[:i]
	}
	switch tag {
	case "hi":
		return Hindi
	case "en":
		return English
	case "kn":
		return Kannada
	default:
		return DefaultLanguage
	}
}

// Valid reports whether l is one of the supported selections.
func (l Language) Valid() bool {
	switch l {
	case Hindi, English, Kannada:
		return true
	}
	return false
}

// Name is the English name of the language, used in model prompts.
func (l Language) Name() string {
	switch l {
	case Hindi:
		return "Hindi"
	case Kannada:
		return "Kannada"
	default:
		return "English"
	}
}

func (l Language) String() string { return string(l) }
