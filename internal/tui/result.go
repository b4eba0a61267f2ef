package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
)

// Generator produces the redacted document for the final span list.
type Generator func(ctx context.Context, redactions []model.Span) ([]byte, error)

// ReviewResult holds the outcome of an interactive review session.
type ReviewResult struct {
	Filename   string
	Redactions []model.Span
	// Exported is the path of the last redacted document written, if any.
	Exported string
}

// Summary describes the final redactions, e.g. "2 PERSON, 1 EMAIL".
func (r *ReviewResult) Summary() string {
	return detect.Summary(r.Redactions)
}

// Report renders the final span list as plain text, one span per line.
func (r *ReviewResult) Report() string {
	var b strings.Builder
	name := r.Filename
	if name == "" {
		name = "document"
	}
	fmt.Fprintf(&b, "%s: %s\n", name, r.Summary())
	for _, sp := range r.Redactions {
		fmt.Fprintf(&b, "  Page %-4s %-10s %q\n", sp.PageLabel(), sp.Kind, sp.Text)
	}
	if r.Exported != "" {
		fmt.Fprintf(&b, "\nRedacted document written to %s\n", r.Exported)
	}
	return b.String()
}

// exportDocument runs the generator and writes the result next to outDir
// under the redacted name.
func exportDocument(ctx context.Context, gen Generator, filename, outDir string, redactions []model.Span) (string, error) {
	data, err := gen(ctx, redactions)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, service.RedactedName(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing redacted document: %w", err)
	}
	return path, nil
}
