package model

// Rule is one operator rule line inserted ahead of the generated routing
// skeleton.
type Rule struct {
	Type      string // e.g. "DOMAIN-SUFFIX", "IP-CIDR", "GEOIP"
	Value     string // domain/suffix/keyword/cidr/cc/process
	Action    string // ActionDirect, ActionReject or ActionProxy
	NoResolve bool   // only meaningful for IP-CIDR/IP-CIDR6
}

// Rule actions. ActionProxy resolves to the main selector of the compiled
// document.
const (
	ActionDirect = "DIRECT"
	ActionReject = "REJECT"
	ActionProxy  = "PROXY"
)
