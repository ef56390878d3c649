package model

import "time"

const (
	GroupSelect  = "select"
	GroupURLTest = "url-test"
)

// Group is a compiler-generated policy group. Both output formats build
// their selector/latency-probe sections from the same list.
type Group struct {
	Name string
	Type string // GroupSelect | GroupURLTest

	// Members are proxy names, other group names, or the DIRECT pseudo-target.
	Members []string

	// url-test only
	TestURL   string
	Interval  time.Duration
	Tolerance int // milliseconds; 0 means unset
}

// Generated group names and built-in targets. Proxy names must never take
// one of these.
const (
	GroupNameSelect  = "🚀 节点选择"
	GroupNameAuto    = "♻️ 自动选择"
	GroupNameLowRate = "💰 低倍率节点"

	TargetDirect = "DIRECT"
	TargetReject = "REJECT"
)

// ReservedNames are taken by generated groups, built-in targets and the
// fixed outbound tags of the nested format.
var ReservedNames = map[string]struct{}{
	GroupNameSelect:  {},
	GroupNameAuto:    {},
	GroupNameLowRate: {},
	TargetDirect:     {},
	TargetReject:     {},
	"direct":         {},
	"block":          {},
	"proxy":          {},
	"auto":           {},
	"dns-out":        {},
}
