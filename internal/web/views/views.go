// Package views renders the HTML pages of the web server as templ components.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

// StatusData is everything the status page shows.
type StatusData struct {
	Now         time.Time
	StoreDriver string
	Entities    []core.EntityInfo
	Sessions    []core.SessionInfo
	Uploads     core.UploadLimiterStatus
}

// StatusPage renders the server status page.
func StatusPage(d StatusData) templ.Component {
	return Layout("datacleaner", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString(`<section><h2>Server</h2><dl>`)
		field(&b, "Time", d.Now.UTC().Format(time.RFC3339))
		field(&b, "Snapshot store", d.StoreDriver)
		field(&b, "Uploads in progress", fmt.Sprintf("%d of %d", d.Uploads.Active, d.Uploads.MaxConcurrent))
		b.WriteString(`</dl></section>`)

		b.WriteString(`<section><h2>Entities</h2><table><thead><tr>` +
			`<th>Kind</th><th>Export file</th><th>ID column</th><th>Columns</th>` +
			`</tr></thead><tbody>`)
		for _, e := range d.Entities {
			row(&b, e.Label, e.FileName, e.IDField, strings.Join(e.Columns, ", "))
		}
		b.WriteString(`</tbody></table></section>`)

		fmt.Fprintf(&b, `<section><h2>Sessions (%d)</h2>`, len(d.Sessions))
		if len(d.Sessions) == 0 {
			b.WriteString(`<p class="empty">No active sessions.</p>`)
		} else {
			b.WriteString(`<table><thead><tr>` +
				`<th>ID</th><th>Clients</th><th>Workers</th><th>Tasks</th>` +
				`<th>Rules</th><th>Errors</th><th>Warnings</th><th>Last access</th>` +
				`</tr></thead><tbody>`)
			for _, s := range d.Sessions {
				row(&b,
					s.ID,
					fmt.Sprint(s.Counts[core.KindClients]),
					fmt.Sprint(s.Counts[core.KindWorkers]),
					fmt.Sprint(s.Counts[core.KindTasks]),
					fmt.Sprint(s.Rules),
					fmt.Sprint(s.Summary.Errors),
					fmt.Sprint(s.Summary.Warnings),
					s.LastAccess.UTC().Format(time.RFC3339),
				)
			}
			b.WriteString(`</tbody></table>`)
		}
		b.WriteString(`</section>`)

		_, err := io.WriteString(w, b.String())
		return err
	}))
}

// ErrorAlert renders an error fragment for HTMX requests.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert"><strong>`)
		b.WriteString(templ.EscapeString(message))
		b.WriteString(`</strong>`)
		if action != "" {
			b.WriteString(`<p>`)
			b.WriteString(templ.EscapeString(action))
			b.WriteString(`</p>`)
		}
		b.WriteString(`<small>Code: `)
		b.WriteString(templ.EscapeString(code))
		b.WriteString(`</small></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
			`<meta name="viewport" content="width=device-width, initial-scale=1">` +
			`<title>` + templ.EscapeString(title) + `</title>` +
			`<style>` + pageStyle + `</style></head><body><main><h1>` +
			templ.EscapeString(title) + `</h1>`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}` +
	`table{border-collapse:collapse;width:100%;margin-bottom:1.5rem}` +
	`th,td{border:1px solid #e5e7eb;padding:.35rem .6rem;text-align:left;font-size:.9rem}` +
	`th{background:#f3f4f6}dt{font-weight:600}dd{margin:0 0 .5rem 0}` +
	`.empty{color:#6b7280}.alert-error{border:1px solid #fca5a5;background:#fef2f2;padding:.75rem}`

func field(b *strings.Builder, label, value string) {
	b.WriteString(`<dt>`)
	b.WriteString(templ.EscapeString(label))
	b.WriteString(`</dt><dd>`)
	b.WriteString(templ.EscapeString(value))
	b.WriteString(`</dd>`)
}

func row(b *strings.Builder, cells ...string) {
	b.WriteString(`<tr>`)
	for _, c := range cells {
		b.WriteString(`<td>`)
		b.WriteString(templ.EscapeString(c))
		b.WriteString(`</td>`)
	}
	b.WriteString(`</tr>`)
}
