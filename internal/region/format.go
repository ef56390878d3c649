// Package region rewrites noisy node names into "{flag} {label} {NN}{rate}".
package region

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/John-Robertt/subforge/internal/model"
)

// Counters numbers nodes per display label. One Counters value belongs to
// one formatting pass and must be threaded through Format in list order.
type Counters map[string]int

type Formatter struct {
	cities map[string][]keyword // ISO code -> city keywords, longest first
	names  map[string]string    // city keyword -> city display name
}

// New builds a formatter. multiCity lists the countries whose labels are
// disambiguated by city; nil means DefaultMultiCity.
func New(multiCity map[string][]City) *Formatter {
	if multiCity == nil {
		multiCity = DefaultMultiCity
	}
	f := &Formatter{
		cities: make(map[string][]keyword, len(multiCity)),
		names:  make(map[string]string),
	}
	for code, cities := range multiCity {
		code = strings.ToUpper(code)
		var ks []keyword
		for _, c := range cities {
			for _, k := range append([]string{c.Name}, c.Keywords...) {
				if k == "" {
					continue
				}
				kw := keyword{key: k, code: code}
				if isASCII(k) {
					kw.re = boundaryRegexp(k)
				}
				ks = append(ks, kw)
				f.names[code+"\x00"+k] = c.Name
			}
		}
		sortLongestFirst(ks)
		f.cities[code] = ks
	}
	return f
}

// Format returns p renamed, or p unchanged when no region is detected.
// c is mutated.
func (f *Formatter) Format(p model.Proxy, c Counters) model.Proxy {
	info, ok := Detect(p.Name)
	if !ok {
		return p
	}
	label := f.label(info, p.Name)
	c[label]++
	p.Name = fmt.Sprintf("%s %s %02d%s", info.Flag, label, c[label], RateSuffix(p.Name))
	return p
}

// FormatAll formats a whole list with fresh counters and rewrites Upstream
// references to renamed nodes.
func (f *Formatter) FormatAll(ps []model.Proxy) []model.Proxy {
	c := Counters{}
	out := make([]model.Proxy, len(ps))
	seen := make(map[string]int, len(ps))
	for _, p := range ps {
		seen[p.Name]++
	}
	renamed := make(map[string]string)
	for i, p := range ps {
		out[i] = f.Format(p, c)
		if out[i].Name != p.Name && seen[p.Name] == 1 {
			renamed[p.Name] = out[i].Name
		}
	}
	for i := range out {
		if to, ok := renamed[out[i].Upstream]; ok {
			out[i].Upstream = to
		}
	}
	return out
}

// label picks the display label:
//   - multi-city country with a city keyword: "US 洛杉矶"
//   - multi-city country without one: the full country name
//   - other countries: the regional display name
func (f *Formatter) label(info Info, name string) string {
	ks, multi := f.cities[info.ISOCode]
	if !multi {
		return info.DisplayName
	}
	folded := width.Fold.String(name)
	for _, k := range ks {
		hit := false
		if k.re != nil {
			hit = k.re.MatchString(folded)
		} else {
			hit = strings.Contains(folded, k.key)
		}
		if hit {
			return info.ISOCode + " " + f.names[info.ISOCode+"\x00"+k.key]
		}
	}
	return info.CountryName
}

// ratePatterns are the accepted multiplier notations, tried in order.
var ratePatterns = []*regexp.Regexp{
	regexp.MustCompile(`倍率\s*[:：]\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`\[\s*(\d+(?:\.\d+)?)\s*[xX×]\s*\]`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)(?:[xX×](?:[^A-Za-z]|$)|倍)`),
	regexp.MustCompile(`(?:^|[^A-Za-z0-9])[xX×](\d+(?:\.\d+)?)`),
}

// Rate extracts the traffic multiplier from name.
func Rate(name string) (float64, bool) {
	s := width.Fold.String(name)
	for _, re := range ratePatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

// RateSuffix renders " [Nx]" for a multiplier other than 1.
func RateSuffix(name string) string {
	v, ok := Rate(name)
	if !ok || v == 1 {
		return ""
	}
	return " [" + strconv.FormatFloat(v, 'f', -1, 64) + "x]"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
