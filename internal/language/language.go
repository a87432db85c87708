// Package language normalizes language codes across the tools in the
// pipeline: tesseract wants ISO 639-2 packs joined with "+", whisper wants
// ISO 639-1, and rendered documents want display names. Resolution is done
// by golang.org/x/text/language; a small alias table covers the forms it
// does not parse (tesseract's bibliographic codes, plain English words).
package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliases maps subtags x/text rejects onto ones it accepts: ISO 639-2/B
// bibliographic codes (tesseract pack names for a handful of languages) and
// the word forms users type into config files.
var aliases = map[string]string{
	"fre": "fr",
	"ger": "de",
	"chi": "zh",
	"dut": "nl",
	"gre": "el",
	"cze": "cs",
	"ice": "is",
	"may": "ms",
	"per": "fa",
	"rum": "ro",
	"slo": "sk",
	"wel": "cy",

	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"vietnamese": "vi",
	"turkish":    "tr",
}

func parseBase(code string) (xlang.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return xlang.Base{}, false
	}
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	base, err := xlang.ParseBase(code)
	if err != nil {
		return xlang.Base{}, false
	}
	return base, true
}

// ToISO2 converts any recognized language code or word to ISO 639-1, the
// form whisper expects. Unknown 2-letter codes pass through; anything else
// unrecognized returns empty.
func ToISO2(code string) string {
	if base, ok := parseBase(code); ok {
		if s := base.String(); len(s) == 2 {
			return s
		}
		return ""
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 2 {
		return code
	}
	return ""
}

// ToISO3 converts any recognized language code to ISO 639-2/T, the tesseract
// pack name. Unknown 3-letter codes pass through; anything else unrecognized
// returns "und".
func ToISO3(code string) string {
	if base, ok := parseBase(code); ok {
		if s := base.ISO3(); s != "" {
			return s
		}
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 3 {
		return code
	}
	return "und"
}

// DisplayName returns the English name for any recognized code, or the
// uppercased code when unrecognized.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	if base, ok := parseBase(trimmed); ok {
		if name := display.English.Languages().Name(base); name != "" {
			return name
		}
	}
	return strings.ToUpper(trimmed)
}

// TesseractSpec builds the -l argument for tesseract: ISO 639-2 pack names
// joined with "+", deduplicated, in input order. Empty input yields "eng".
func TesseractSpec(codes []string) string {
	packs := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		pack := ToISO3(code)
		if pack == "und" {
			continue
		}
		if _, ok := seen[pack]; ok {
			continue
		}
		seen[pack] = struct{}{}
		packs = append(packs, pack)
	}
	if len(packs) == 0 {
		return "eng"
	}
	return strings.Join(packs, "+")
}
