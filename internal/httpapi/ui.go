package httpapi

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/sub"
)

//go:embed ui/index.html
var uiIndexHTML string

var uiIndex = template.Must(template.New("index").Parse(uiIndexHTML))

type uiData struct {
	Schemes string
}

// handleIndex renders the link builder. The protocol list comes from the
// codec registry so the page never advertises a scheme /sub rejects.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := uiIndex.Execute(&buf, uiData{Schemes: strings.Join(sub.Schemes(), " ")}); err != nil {
		logrus.WithError(err).Errorln("[HTTP] render index")
		WriteText(w, http.StatusInternalServerError, "index unavailable\n")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
