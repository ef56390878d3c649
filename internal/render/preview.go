package render

import (
	"bytes"
	"html/template"

	"github.com/John-Robertt/subforge/internal/model"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · subforge</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2328}
header{padding:12px 20px;background:#1f2328;color:#fff}
header small{opacity:.7;margin-left:8px}
.diag{padding:8px 20px;background:#fff4e5;border-bottom:1px solid #f0d9b5;font-size:13px}
.cols{display:grid;grid-template-columns:1fr 1fr;gap:12px;padding:12px}
section{background:#fff;border:1px solid #d0d7de;border-radius:6px;overflow:hidden}
h2{margin:0;padding:8px 12px;font-size:14px;border-bottom:1px solid #d0d7de;background:#f6f8fa}
pre{margin:0;padding:12px;font-size:12px;line-height:1.45;overflow:auto;max-height:80vh}
@media (max-width:900px){.cols{grid-template-columns:1fr}}
</style>
</head>
<body>
<header><strong>{{.Title}}</strong><small>{{.Count}} 个节点</small></header>
{{if .Summary}}<div class="diag">跳过：{{.Summary}}{{range .Samples}}<br>{{.Code}} {{.Message}}{{if .Snippet}}：<code>{{.Snippet}}</code>{{end}}{{end}}</div>{{end}}
<div class="cols">
<section><h2>Clash / mihomo (YAML)</h2><pre>{{.Tabular}}</pre></section>
<section><h2>sing-box (JSON)</h2><pre>{{.Nested}}</pre></section>
</div>
</body>
</html>
`))

// RenderPreview puts both documents side by side for a browser.
func RenderPreview(tabular, nested Output, count int, meta model.SubscriptionMetadata, diag model.Diagnostics) ([]byte, error) {
	var all model.Diagnostics
	all.Merge(diag)
	all.Merge(tabular.Diagnostics)
	all.Merge(nested.Diagnostics)

	var buf bytes.Buffer
	err := previewTemplate.Execute(&buf, struct {
		Title   string
		Count   int
		Summary string
		Samples []model.AppError
		Tabular string
		Nested  string
	}{
		Title:   Title(meta),
		Count:   count,
		Summary: all.Summary(),
		Samples: all.Samples,
		Tabular: string(tabular.Body),
		Nested:  string(nested.Body),
	})
	if err != nil {
		return nil, internalError("预览渲染失败", err)
	}
	return buf.Bytes(), nil
}
