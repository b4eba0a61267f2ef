package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
)

var redactCmd = &cobra.Command{
	Use:   "redact <file.pdf>",
	Short: "Generate a redacted PDF from a reviewed span list",
	Long: `Send a PDF and its final redactions to the service and save the result
as redacted_<file>.pdf.

The redactions file may hold a saved analysis or a bare JSON array of spans.`,
	Args: cobra.ExactArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringP("redactions", "r", "", "analysis or span list JSON (required)")
	redactCmd.Flags().StringP("out", "o", ".", "directory for the redacted PDF")
	_ = redactCmd.MarkFlagRequired("redactions")
}

func runRedact(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	if err := validatePDF(pdfPath); err != nil {
		return err
	}

	redPath, _ := cmd.Flags().GetString("redactions")
	redactions, err := loadRedactions(redPath)
	if err != nil {
		return err
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return err
	}
	defer f.Close()

	out, err := newClient().Generate(cmd.Context(), filepath.Base(pdfPath), f, redactions)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	dest := filepath.Join(outDir, service.RedactedName(pdfPath))
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return fmt.Errorf("writing redacted document: %w", err)
	}
	fmt.Printf("Applied %d redaction(s); saved %s\n", len(redactions), dest)
	return nil
}

// loadRedactions reads either a full analysis or a bare span array.
func loadRedactions(path string) ([]model.Span, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if looksLikeJSON(data) {
		var a model.Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		model.SortByStart(a.Redactions)
		return a.Redactions, nil
	}

	var spans []model.Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	model.SortByStart(spans)
	return spans, nil
}
