package fetch

import (
	"encoding/base64"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/John-Robertt/subforge/internal/model"
)

// ParseMetadata reads the de-facto subscription headers:
//
//	subscription-userinfo: upload=1; download=2; total=3; expire=4
//	profile-update-interval: 24
//	profile-web-page-url: https://...
//	profile-title: name | base64:bmFtZQ==
//	content-disposition: attachment; filename*=UTF-8''name.yaml
func ParseMetadata(h http.Header) model.SubscriptionMetadata {
	var m model.SubscriptionMetadata

	for _, part := range strings.Split(h.Get("Subscription-Userinfo"), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			// Some panels send floats.
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				continue
			}
			n = int64(f)
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "upload":
			m.Upload = n
		case "download":
			m.Download = n
		case "total":
			m.Total = n
		case "expire":
			m.Expire = n
		}
	}

	if v := strings.TrimSpace(h.Get("Profile-Update-Interval")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.UpdateIntervalHours = n
		}
	}
	m.Homepage = strings.TrimSpace(h.Get("Profile-Web-Page-Url"))

	m.Name = decodeTitle(h.Get("Profile-Title"))
	if m.Name == "" {
		m.Name = dispositionName(h.Get("Content-Disposition"))
	}
	return m
}

func decodeTitle(v string) string {
	v = strings.TrimSpace(v)
	if rest, ok := strings.CutPrefix(v, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	return v
}

// dispositionName returns the attachment filename without its extension.
// mime.ParseMediaType decodes RFC 5987 filename* values.
func dispositionName(v string) string {
	if v == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	name := params["filename"]
	return strings.TrimSuffix(name, path.Ext(name))
}
