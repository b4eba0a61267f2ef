package cli

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/model"
)

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Print a redaction report (non-interactive)",
	Long: `Load a document the same way 'review' does and print its redactions as
a structured report. Useful for CI checks and piping into other tools.

Exit codes (with --exit-code):
  0  no redactions found
  1  redactions found`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown, html")
	reportCmd.Flags().StringSlice("skip", nil, "local detector passes to skip")
	reportCmd.Flags().Bool("exit-code", false, "exit 1 when any redaction is found")
}

func runReport(cmd *cobra.Command, args []string) error {
	skip, _ := cmd.Flags().GetStringSlice("skip")
	src, err := loadSource(cmd.Context(), args[0], skip)
	if err != nil {
		return err
	}

	r := newReport(src.Analysis)
	w := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		err = r.writeJSON(w)
	case "markdown":
		err = r.writeMarkdown(w)
	case "html":
		err = r.writeHTML(w)
	case "text":
		err = r.writeText(w)
	default:
		return fmt.Errorf("unknown format %q (valid: text, json, markdown, html)", format)
	}
	if err != nil {
		return err
	}

	if exit, _ := cmd.Flags().GetBool("exit-code"); exit && len(r.Redactions) > 0 {
		os.Exit(1)
	}
	return nil
}

// report is the data every output format renders.
type report struct {
	Filename   string
	Pages      int
	Redactions []model.Span
	Counts     map[model.Kind]int
}

func newReport(a *model.Analysis) *report {
	spans := make([]model.Span, len(a.Redactions))
	copy(spans, a.Redactions)
	model.SortByStart(spans)

	name := a.Filename
	if name == "" {
		name = "document"
	}
	return &report{
		Filename:   name,
		Pages:      len(a.PageOffsets),
		Redactions: spans,
		Counts:     detect.Counts(spans),
	}
}

// kinds returns the kinds present, built-in kinds first in display order.
func (r *report) kinds() []model.Kind {
	var out []model.Kind
	for _, k := range model.KnownKinds() {
		if r.Counts[k] > 0 {
			out = append(out, k)
		}
	}
	var extra []model.Kind
	for k := range r.Counts {
		if !k.Known() {
			extra = append(extra, k)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func (r *report) summary() string {
	return detect.Summary(r.Redactions)
}

func (r *report) writeText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %d page(s), %d redaction(s)\n", r.Filename, r.Pages, len(r.Redactions))
	fmt.Fprintf(w, "Summary: %s\n\n", r.summary())

	if len(r.Redactions) == 0 {
		fmt.Fprintln(w, "Nothing to redact.")
		return nil
	}

	byPage := model.ByPage(r.Redactions)
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	for _, p := range pages {
		label := byPage[p][0].PageLabel()
		fmt.Fprintf(w, "  Page %s\n", label)
		for _, sp := range byPage[p] {
			fmt.Fprintf(w, "    %s %-10s %q [%d:%d]\n", kindIcon(sp.Kind), sp.Kind, sp.Text, sp.Start, sp.End)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (r *report) writeJSON(w io.Writer) error {
	type jsonOutput struct {
		Filename   string         `json:"filename"`
		Pages      int            `json:"pages"`
		Summary    string         `json:"summary"`
		Total      int            `json:"total"`
		ByKind     map[string]int `json:"by_kind"`
		Redactions []model.Span   `json:"redactions"`
	}

	out := jsonOutput{
		Filename:   r.Filename,
		Pages:      r.Pages,
		Summary:    r.summary(),
		Total:      len(r.Redactions),
		ByKind:     make(map[string]int),
		Redactions: r.Redactions,
	}
	for k, n := range r.Counts {
		out.ByKind[k.String()] = n
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (r *report) writeMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "## Redaction Report: %s\n\n", r.Filename)
	fmt.Fprintf(w, "**%d page(s)**, **%d redaction(s)**\n\n", r.Pages, len(r.Redactions))

	if len(r.Redactions) == 0 {
		fmt.Fprintln(w, "Nothing to redact.")
		return nil
	}

	fmt.Fprintln(w, "| Kind | Count |")
	fmt.Fprintln(w, "|------|-------|")
	for _, k := range r.kinds() {
		fmt.Fprintf(w, "| %s | %d |\n", k, r.Counts[k])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Page | Kind | Text | Offsets |")
	fmt.Fprintln(w, "|------|------|------|---------|")
	for _, sp := range r.Redactions {
		fmt.Fprintf(w, "| %s | %s | `%s` | %d–%d |\n", sp.PageLabel(), sp.Kind, sp.Text, sp.Start, sp.End)
	}
	return nil
}

func (r *report) writeHTML(w io.Writer) error {
	fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>redline Redaction Report</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 40px auto; padding: 0 20px; background: #282a36; color: #f8f8f2; }
  h1 { color: #bd93f9; }
  .summary { background: #343746; padding: 16px; border-radius: 8px; margin-bottom: 24px; }
  .summary span { margin-right: 24px; }
  .kind { font-weight: bold; }
  .kind-PERSON { color: #50fa7b; }
  .kind-ORG { color: #8be9fd; }
  .kind-LOCATION { color: #ff79c6; }
  .kind-EMAIL { color: #f1fa8c; }
  .kind-PHONE { color: #bd93f9; }
  .kind-MANUAL { color: #ff5555; }
  table { width: 100%; border-collapse: collapse; }
  th { text-align: left; padding: 8px 12px; background: #44475a; color: #f8f8f2; }
  td { padding: 8px 12px; border-bottom: 1px solid #44475a; }
  tr:hover { background: #343746; }
  code { background: #343746; padding: 2px 6px; border-radius: 4px; font-size: 0.9em; }
  .clean { color: #50fa7b; font-size: 1.2em; }
  footer { margin-top: 32px; color: #6272a4; font-size: 0.85em; }
</style>
</head>
<body>
<h1>redline Redaction Report</h1>
`)

	fmt.Fprintf(w, `<div class="summary">
  <span><strong>%s</strong></span>
  <span><strong>%d</strong> page(s)</span>
  <span><strong>%d</strong> redaction(s)</span>
  <span>%s</span>
</div>
`, html.EscapeString(r.Filename), r.Pages, len(r.Redactions), html.EscapeString(r.summary()))

	if len(r.Redactions) == 0 {
		fmt.Fprintln(w, `<p class="clean">Nothing to redact.</p>`)
	} else {
		fmt.Fprintln(w, `<table>
<thead><tr><th>Page</th><th>Kind</th><th>Text</th><th>Offsets</th></tr></thead>
<tbody>`)
		for _, sp := range r.Redactions {
			fmt.Fprintf(w, `<tr><td>%s</td><td class="kind kind-%s">%s</td><td><code>%s</code></td><td>%d–%d</td></tr>
`, sp.PageLabel(), html.EscapeString(string(sp.Kind)), html.EscapeString(sp.Kind.String()), html.EscapeString(sp.Text), sp.Start, sp.End)
		}
		fmt.Fprintln(w, `</tbody></table>`)
	}

	fmt.Fprintln(w, `<footer>Generated by <strong>redline</strong></footer>
</body>
</html>`)
	return nil
}

func kindIcon(k model.Kind) string {
	switch k {
	case model.KindPerson:
		return "@ "
	case model.KindOrg:
		return "# "
	case model.KindLocation:
		return "^ "
	case model.KindEmail, model.KindPhone:
		return "* "
	case model.KindManual:
		return "+ "
	default:
		return "- "
	}
}
