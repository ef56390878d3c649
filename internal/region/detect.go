package region

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/width"
)

// Info is the detected region of a name. It is derived per formatting pass
// and never stored.
type Info struct {
	Flag        string
	ISOCode     string
	DisplayName string
	CountryName string
}

type keyword struct {
	key  string
	code string
	re   *regexp.Regexp // nil for plain substring matching
}

// sortLongestFirst orders by rune length descending, then lexically so the
// order is deterministic.
func sortLongestFirst(ks []keyword) {
	sort.Slice(ks, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(ks[i].key), utf8.RuneCountInString(ks[j].key)
		if li != lj {
			return li > lj
		}
		return ks[i].key < ks[j].key
	})
}

func substringKeywords(m map[string]string) []keyword {
	out := make([]keyword, 0, len(m))
	for k, code := range m {
		out = append(out, keyword{key: k, code: code})
	}
	sortLongestFirst(out)
	return out
}

func boundaryKeywords(m map[string]string) []keyword {
	out := make([]keyword, 0, len(m))
	for k, code := range m {
		out = append(out, keyword{key: k, code: code, re: boundaryRegexp(k)})
	}
	sortLongestFirst(out)
	return out
}

// boundaryRegexp matches key when it is not glued to other ASCII letters.
// Digits and punctuation count as boundaries, so "HK01" matches "HK".
func boundaryRegexp(key string) *regexp.Regexp {
	flags := "(?i)"
	if len(key) <= 3 && key == strings.ToUpper(key) {
		flags = ""
	}
	return regexp.MustCompile(flags + `(?:^|[^A-Za-z])` + regexp.QuoteMeta(key) + `(?:[^A-Za-z]|$)`)
}

var (
	cjkTable     = substringKeywords(cjkKeywords)
	englishTable = boundaryKeywords(englishKeywords)
)

// genericTable is built from CLDR region names on first use: every
// two-letter country code with its English and Simplified Chinese names.
var genericTable = sync.OnceValue(func() []keyword {
	en := display.Regions(language.English)
	zh := display.Regions(language.SimplifiedChinese)

	var out []keyword
	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			code := string([]rune{a, b})
			r, err := language.ParseRegion(code)
			if err != nil || !r.IsCountry() {
				continue
			}
			if name := en.Name(r); len(name) > 3 {
				out = append(out, keyword{key: name, code: code, re: boundaryRegexp(name)})
			}
			if name := zh.Name(r); utf8.RuneCountInString(name) >= 2 {
				out = append(out, keyword{key: name, code: code})
			}
		}
	}
	sortLongestFirst(out)
	return out
})

// Detect finds the region of name. Detection order, first match wins:
// flag emoji, CJK keywords, English keywords, CLDR country names.
func Detect(name string) (Info, bool) {
	s := width.Fold.String(name)
	if code, ok := flagCode(s); ok {
		return infoFor(code), true
	}
	if code, ok := match(cjkTable, s); ok {
		return infoFor(code), true
	}
	if code, ok := match(englishTable, s); ok {
		return infoFor(code), true
	}
	if code, ok := match(genericTable(), s); ok {
		return infoFor(code), true
	}
	return Info{}, false
}

func match(table []keyword, s string) (string, bool) {
	for _, k := range table {
		if k.re != nil {
			if k.re.MatchString(s) {
				return k.code, true
			}
			continue
		}
		if strings.Contains(s, k.key) {
			return k.code, true
		}
	}
	return "", false
}

// flagCode decodes the first pair of regional indicator symbols in s.
func flagCode(s string) (string, bool) {
	var prev rune = -1
	for _, r := range s {
		if isRegionalIndicator(r) {
			if prev >= 0 {
				code := string([]rune{prev - 0x1F1E6 + 'A', r - 0x1F1E6 + 'A'})
				if _, err := language.ParseRegion(code); err == nil {
					return code, true
				}
				prev = -1
				continue
			}
			prev = r
			continue
		}
		prev = -1
	}
	return "", false
}

func isRegionalIndicator(r rune) bool { return r >= 0x1F1E6 && r <= 0x1F1FF }

// Flag renders an ISO code as a flag emoji.
func Flag(code string) string {
	if len(code) != 2 {
		return ""
	}
	code = strings.ToUpper(code)
	return string([]rune{rune(code[0]) - 'A' + 0x1F1E6, rune(code[1]) - 'A' + 0x1F1E6})
}

// DisplayName is the Chinese label for code.
func DisplayName(code string) string {
	if n, ok := displayNames[code]; ok {
		return n
	}
	if r, err := language.ParseRegion(code); err == nil {
		if n := display.Regions(language.SimplifiedChinese).Name(r); n != "" {
			return n
		}
	}
	return code
}

// CountryName is the full country name for code, which only differs from
// DisplayName for regions usually labelled by a short form.
func CountryName(code string) string {
	if n, ok := countryNames[code]; ok {
		return n
	}
	return DisplayName(code)
}

func infoFor(code string) Info {
	if code == "UK" {
		code = "GB"
	}
	return Info{Flag: Flag(code), ISOCode: code, DisplayName: DisplayName(code), CountryName: CountryName(code)}
}
