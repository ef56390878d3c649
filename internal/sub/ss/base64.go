package ss

import "encoding/base64"

func rawURLBase64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
