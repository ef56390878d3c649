package template

import "testing"

func FuzzInjectAnchors(f *testing.F) {
	tmpl := "proxies:\n  #@PROXIES@#\nproxy-groups:\n  #@GROUPS@#\nrules:\n  #@RULES@#\n"
	tmplCRLF := "proxies:\r\n  #@PROXIES@#\r\nproxy-groups:\r\n  #@GROUPS@#\r\nrules:\r\n  #@RULES@#\r\n"

	proxies := "- name: \"A\"\n  type: ss\n  server: \"a.node.net\"\n  port: 8388\n  cipher: \"aes-128-gcm\"\n  password: \"pass\"\n"
	groups := "- name: \"PROXY\"\n  type: \"select\"\n  proxies:\n    - \"A\"\n"
	rules := "- \"MATCH,DIRECT\"\n"

	f.Add(tmpl, proxies, groups, rules)
	f.Add(tmplCRLF, proxies, groups, rules)

	f.Fuzz(func(t *testing.T, templateText, proxiesBlock, groupsBlock, rulesBlock string) {
		out, err := InjectAnchors(templateText, Blocks{
			Proxies: proxiesBlock,
			Groups:  groupsBlock,
			Rules:   rulesBlock,
		}, "template.yaml")
		if err != nil {
			return
		}
		_ = Validate(out, "template.yaml")
	})
}
