package model

// SubscriptionMetadata is extracted from the transport headers of a fetched
// subscription document. It is descriptive only and never mutates proxies.
type SubscriptionMetadata struct {
	Name     string
	Upload   int64
	Download int64
	Total    int64
	Expire   int64 // unix seconds; 0 means unknown
	Homepage string

	// UpdateIntervalHours is 0 when the provider did not send one.
	UpdateIntervalHours int
}

// HasTraffic reports whether any of the usage counters is set.
func (m SubscriptionMetadata) HasTraffic() bool {
	return m.Upload != 0 || m.Download != 0 || m.Total != 0
}

// ChainRule is one "target uses upstream" directive. Both sides are name
// patterns: "*kw" matches names containing kw case-insensitively, anything
// else matches an exact name or a substring of it.
//
// A rule with Node set is bound to the single record whose connection
// identity equals Node; Target then only labels the rule in diagnostics.
type ChainRule struct {
	Target   string
	Upstream string
	Node     string
}
