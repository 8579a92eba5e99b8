package receipts

import (
	"html/template"
	"io"
	"time"
)

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"ts": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Consent Receipt - Stream {{.Stream.ID}}</title>
<style>
body { font-family: sans-serif; margin: 24px; color: #222; }
table { width: 100%; border-collapse: collapse; margin-top: 8px; }
th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; text-align: left; }
th { background: #f5f5f5; }
</style>
</head>
<body>
<h1>Consent Receipt</h1>
<p>Generated at {{ts .GeneratedAt}}</p>

<h2>Stream</h2>
<p>ID: {{.Stream.ID}}<br>Name: {{.Stream.Name}}<br>Status: {{.Stream.Status}}<br>Expires at: {{ts .Stream.ExpiresAt}}<br>Accesses: {{.Stream.AccessCount}}</p>

<h2>Dataset</h2>
{{with .Dataset}}<p>ID: {{.ID}}<br>Name: {{.Name}}<br>SHA-256: {{.ContentHash}}</p>{{else}}<p>N/A</p>{{end}}

<h2>Rule</h2>
{{with .Rule}}<p>Name: {{.Name}}<br>Fields: {{range $i, $f := .Fields}}{{if $i}}, {{end}}{{$f}}{{end}}<br>TTL: {{.TTLMinutes}} minutes</p>
{{if .Filters}}<ul>{{range .Filters}}<li>{{.Field}} {{.Op}} {{.Value}}{{if .Value2}} .. {{.Value2}}{{end}}</li>{{end}}</ul>{{end}}
{{if .Aggregations}}<ul>{{range .Aggregations}}<li>{{.Op}}({{.Field}})</li>{{end}}</ul>{{end}}
{{with .Obfuscation}}<p>k-anonymity: {{.KAnonymity}}, drop PII: {{.DropPII}}, noise: {{if .NoiseLevel}}{{.NoiseLevel}}{{else}}none{{end}}</p>{{end}}
{{else}}<p>N/A</p>{{end}}

<h2>Tokens</h2>
<table>
<thead><tr><th>ID</th><th>Token</th><th>Expires at</th><th>One-time</th><th>Revoked</th><th>Uses</th></tr></thead>
<tbody>
{{range .Tokens}}<tr><td>{{.ID}}</td><td>{{.Token}}</td><td>{{ts .ExpiresAt}}</td><td>{{if .OneTime}}yes{{else}}no{{end}}</td><td>{{if .Revoked}}yes{{else}}no{{end}}</td><td>{{.AccessCount}}</td></tr>
{{end}}</tbody>
</table>

<h2>Audit events</h2>
<table>
<thead><tr><th>Time</th><th>Type</th><th>Actor</th><th>Message</th></tr></thead>
<tbody>
{{range .Events}}<tr><td>{{ts .CreatedAt}}</td><td>{{.Type}}</td><td>{{.Actor}}</td><td>{{.Message}}</td></tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

// WriteHTML renders the receipt as a standalone HTML page
func WriteHTML(w io.Writer, r *Receipt) error {
	return receiptTemplate.Execute(w, r)
}
