package render

// supportedRuleTypes is the rule TYPE allow-list per target. Rules outside
// it are dropped with a diagnostic instead of producing a document the
// client refuses to load.
func supportedRuleTypes(target Target) map[string]struct{} {
	switch target {
	case TargetClash:
		return map[string]struct{}{
			"DOMAIN":         {},
			"DOMAIN-SUFFIX":  {},
			"DOMAIN-KEYWORD": {},
			"IP-CIDR":        {},
			"IP-CIDR6":       {},
			"GEOIP":          {},
			"GEOSITE":        {},
			"PROCESS-NAME":   {},
		}
	case TargetSingBox:
		// sing-box 1.12 removed the geoip/geosite databases.
		return map[string]struct{}{
			"DOMAIN":         {},
			"DOMAIN-SUFFIX":  {},
			"DOMAIN-KEYWORD": {},
			"IP-CIDR":        {},
			"IP-CIDR6":       {},
			"PROCESS-NAME":   {},
		}
	default:
		return nil
	}
}
