package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/region"
)

const (
	DefaultTestURL   = "https://www.gstatic.com/generate_204"
	DefaultInterval  = 300 * time.Second
	DefaultTolerance = 50
)

// word matches an uppercase code not glued to other ASCII letters, so
// "US" hits "US-01" but not "RUS" or "Plus".
func word(code string) string {
	return `(?:^|[^A-Za-z])` + code + `(?:[^A-Za-z]|$)`
}

// regionGroups are fixed selectors of the generated documents. They use
// their own patterns rather than the name formatter so that unformatted
// single-URI and aggregation sources group the same way.
var regionGroups = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"🇭🇰 香港节点", regexp.MustCompile(`港|🇭🇰|(?i:hong\s*kong)|` + word("HK"))},
	{"🇹🇼 台湾节点", regexp.MustCompile(`台湾|台灣|台北|🇹🇼|(?i:taiwan|taipei)|` + word("TW"))},
	{"🇯🇵 日本节点", regexp.MustCompile(`日本|东京|東京|大阪|🇯🇵|(?i:japan|tokyo|osaka)|` + word("JP"))},
	{"🇸🇬 新加坡节点", regexp.MustCompile(`新加坡|狮城|獅城|🇸🇬|(?i:singapore)|` + word("SG"))},
	{"🇺🇸 美国节点", regexp.MustCompile(`美国|美國|洛杉矶|硅谷|🇺🇸|(?i:united\s*states|america|los\s*angeles|seattle|san\s*jose)|` + word("US"))},
}

// GroupOptions drives group generation shared by both compilers.
type GroupOptions struct {
	// AggregatedSource enables the low-rate group.
	AggregatedSource bool

	TestURL  string
	Interval time.Duration
}

func (o GroupOptions) withDefaults() GroupOptions {
	if o.TestURL == "" {
		o.TestURL = DefaultTestURL
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// IsLowRate reports whether a node name advertises a traffic multiplier
// below 1.
func IsLowRate(name string) bool {
	if strings.Contains(name, "低倍率") {
		return true
	}
	rate, ok := region.Rate(name)
	return ok && rate < 1
}

// BuildGroups returns the generated groups in output order: the manual
// selector, the latency probe over every proxy, non-empty region groups and
// the low-rate group. An empty proxy list yields no groups.
func BuildGroups(proxies []model.Proxy, opt GroupOptions) []model.Group {
	if len(proxies) == 0 {
		return nil
	}
	opt = opt.withDefaults()
	names := lo.Map(proxies, func(p model.Proxy, _ int) string { return p.Name })

	probe := func(name string, members []string) model.Group {
		return model.Group{
			Name:      name,
			Type:      model.GroupURLTest,
			Members:   members,
			TestURL:   opt.TestURL,
			Interval:  opt.Interval,
			Tolerance: DefaultTolerance,
		}
	}

	var extra []model.Group
	for _, rg := range regionGroups {
		members := lo.Filter(names, func(n string, _ int) bool { return rg.Pattern.MatchString(n) })
		if len(members) > 0 {
			extra = append(extra, probe(rg.Name, members))
		}
	}
	if opt.AggregatedSource {
		if members := lo.Filter(names, func(n string, _ int) bool { return IsLowRate(n) }); len(members) > 0 {
			extra = append(extra, probe(model.GroupNameLowRate, members))
		}
	}

	selectMembers := []string{model.GroupNameAuto, model.TargetDirect}
	selectMembers = append(selectMembers, lo.Map(extra, func(g model.Group, _ int) string { return g.Name })...)
	selectMembers = append(selectMembers, names...)

	groups := []model.Group{
		{Name: model.GroupNameSelect, Type: model.GroupSelect, Members: selectMembers},
		probe(model.GroupNameAuto, names),
	}
	return append(groups, extra...)
}

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }
