// Package dedupe collapses a proxy list into a minimal valid set.
package dedupe

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/subforge/internal/model"
)

type KeepStrategy string

const (
	KeepFirst   KeepStrategy = "first"
	KeepLast    KeepStrategy = "last"
	KeepShorter KeepStrategy = "shorter"
)

// ParseKeepStrategy maps "" to the default (shorter).
func ParseKeepStrategy(s string) (KeepStrategy, error) {
	switch KeepStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeepShorter:
		return KeepShorter, nil
	case KeepFirst:
		return KeepFirst, nil
	case KeepLast:
		return KeepLast, nil
	default:
		return "", fmt.Errorf("unknown keep strategy %q (want first|last|shorter)", s)
	}
}

type Options struct {
	FilterInformational bool
	Keep                KeepStrategy // "" means KeepShorter
}

// Stats is observability output only; callers must not branch on it.
type Stats struct {
	Informational int `json:"informational"`
	Invalid       int `json:"invalid"`
	Duplicate     int `json:"duplicate"`
	Valid         int `json:"valid"`
}

func (s Stats) String() string {
	return fmt.Sprintf("valid=%d duplicate=%d invalid=%d informational=%d", s.Valid, s.Duplicate, s.Invalid, s.Informational)
}

// Dedupe drops invalid nodes, then informational nodes (when enabled), then
// collapses records with the same Key. The output keeps the position of the
// first occurrence of each key; KeepLast/KeepShorter only swap the record
// stored at that position. Dedupe is idempotent.
func Dedupe(proxies []model.Proxy, opt Options) ([]model.Proxy, Stats) {
	keep := opt.Keep
	if keep == "" {
		keep = KeepShorter
	}

	var st Stats
	out := make([]model.Proxy, 0, len(proxies))
	index := make(map[string]int, len(proxies))

	for _, p := range proxies {
		if IsInvalid(p) {
			st.Invalid++
			continue
		}
		if opt.FilterInformational && IsInformational(p) {
			st.Informational++
			continue
		}

		k := Key(p)
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, p)
			continue
		}

		st.Duplicate++
		switch keep {
		case KeepLast:
			out[i] = p
		case KeepShorter:
			if utf8.RuneCountInString(p.Name) < utf8.RuneCountInString(out[i].Name) {
				out[i] = p
			}
		}
	}
	st.Valid = len(out)
	return out, st
}

// Key is the connection identity of p: type, server, port and the
// protocol-specific identity tuple. The display name and the upstream
// annotation never take part.
func Key(p model.Proxy) string {
	var b strings.Builder
	b.WriteString(p.Type())
	b.WriteByte(0x1e)
	b.WriteString(strings.ToLower(strings.Trim(p.Server, "[]")))
	b.WriteByte(0x1e)
	b.WriteString(strconv.Itoa(p.Port))
	b.WriteByte(0x1e)
	if p.Options != nil {
		b.WriteString(p.Options.IdentityKey())
	}
	return b.String()
}
