package render

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/subforge/internal/model"
)

const (
	DefaultTitle               = "subforge"
	DefaultUpdateIntervalHours = 24
)

// Title is the profile name shown by clients.
func Title(meta model.SubscriptionMetadata) string {
	if t := strings.TrimSpace(meta.Name); t != "" {
		return t
	}
	return DefaultTitle
}

// AttachmentDisposition quotes filename per RFC 5987 so non-ASCII titles
// survive.
func AttachmentDisposition(filename string) string {
	return "attachment; filename*=UTF-8''" + url.PathEscape(filename)
}

// TabularHeaders carries the subscription metadata the way Clash clients
// read it. Subscription-Userinfo is only sent when a traffic counter is
// known.
func TabularHeaders(meta model.SubscriptionMetadata) http.Header {
	title := Title(meta)
	h := http.Header{}
	h.Set("Content-Disposition", AttachmentDisposition(title+".yaml"))
	h.Set("Profile-Title", "base64:"+base64.StdEncoding.EncodeToString([]byte(title)))

	interval := meta.UpdateIntervalHours
	if interval <= 0 {
		interval = DefaultUpdateIntervalHours
	}
	h.Set("Profile-Update-Interval", strconv.Itoa(interval))

	if meta.Expire > 0 {
		h.Set("Expires", time.Unix(meta.Expire, 0).UTC().Format(http.TimeFormat))
	}
	if meta.Homepage != "" {
		h.Set("Profile-Web-Page-Url", meta.Homepage)
	}
	if meta.HasTraffic() {
		h.Set("Subscription-Userinfo", fmt.Sprintf("upload=%d; download=%d; total=%d; expire=%d",
			meta.Upload, meta.Download, meta.Total, meta.Expire))
	}
	return h
}

func NestedHeaders(meta model.SubscriptionMetadata) http.Header {
	h := http.Header{}
	h.Set("Content-Disposition", AttachmentDisposition(Title(meta)+".json"))
	return h
}
