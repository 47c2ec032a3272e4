package language

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

type entry struct {
	code    string // ISO 639-1 (2-letter)
	display string // Human-readable name
	words   []string
}

// The dubbing pipeline supports a fixed language set; both the HTTP surface
// and job validation reject anything outside it.
var languages = []entry{
	{"en", "English", []string{"english"}},
	{"hi", "Hindi", []string{"hindi"}},
	{"bn", "Bengali", []string{"bengali", "bangla"}},
	{"te", "Telugu", []string{"telugu"}},
	{"ta", "Tamil", []string{"tamil"}},
	{"mr", "Marathi", []string{"marathi"}},
	{"gu", "Gujarati", []string{"gujarati"}},
	{"kn", "Kannada", []string{"kannada"}},
	{"ml", "Malayalam", []string{"malayalam"}},
}

var (
	byCode map[string]*entry
	byWord map[string]*entry
)

func init() {
	byCode = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode[e.code] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	// Fall back to BCP 47 parsing so variants like "en-US" or "hi-IN"
	// resolve to their base language.
	if tag, err := language.Parse(code); err == nil {
		if base, conf := tag.Base(); conf >= language.High {
			if e, ok := byCode[base.String()]; ok {
				return e
			}
		}
	}
	return nil
}

// Normalize resolves a language code, word form, or BCP 47 tag to the
// canonical 2-letter code of a supported language. Returns empty string for
// unsupported input.
func Normalize(code string) string {
	if e := lookup(code); e != nil {
		return e.code
	}
	return ""
}

// Supported reports whether the code resolves to a supported dubbing language.
func Supported(code string) bool {
	return lookup(code) != nil
}

// DisplayName returns a human-readable language name for any supported code.
// Returns "Unknown" for unsupported input.
func DisplayName(code string) string {
	if e := lookup(code); e != nil {
		return e.display
	}
	return "Unknown"
}

// Codes returns the sorted list of supported 2-letter language codes.
func Codes() []string {
	codes := make([]string, 0, len(languages))
	for _, e := range languages {
		codes = append(codes, e.code)
	}
	sort.Strings(codes)
	return codes
}

// Voice styles accepted for synthesis.
const (
	VoiceNatural      = "natural"
	VoiceProfessional = "professional"
	VoiceCasual       = "casual"
	VoiceNews         = "news"
)

var voiceStyles = map[string]struct{}{
	VoiceNatural:      {},
	VoiceProfessional: {},
	VoiceCasual:       {},
	VoiceNews:         {},
}

// NormalizeVoiceStyle resolves a voice style name, defaulting empty input to
// natural. Returns empty string for unknown styles.
func NormalizeVoiceStyle(style string) string {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		return VoiceNatural
	}
	if _, ok := voiceStyles[style]; ok {
		return style
	}
	return ""
}

// VoiceStyles returns the sorted list of accepted voice styles.
func VoiceStyles() []string {
	styles := make([]string, 0, len(voiceStyles))
	for style := range voiceStyles {
		styles = append(styles, style)
	}
	sort.Strings(styles)
	return styles
}
