package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/session"
	"github.com/sprite-ai/redline/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Open an interactive review session",
	Long: `Open an interactive TUI for reviewing proposed redactions.

The input may be a PDF (analyzed by the service), a saved analysis (.json),
or a plain-text file run through the local detector. Use "-" to read an
analysis or text from stdin.

Examples:
  redline review contract.pdf
  redline review analysis.json --pdf contract.pdf
  redline review notes.txt --save reviewed.json`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("pdf", "", "original PDF used for export when reviewing a saved analysis")
	reviewCmd.Flags().StringP("out", "o", ".", "directory for the redacted PDF")
	reviewCmd.Flags().String("theme", "", "chroma style used for highlights (default from config)")
	reviewCmd.Flags().String("save", "", "write the reviewed analysis as JSON to this file")
	reviewCmd.Flags().StringSlice("skip", nil, "local detector passes to skip")
}

func runReview(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("review needs a terminal; use 'redline report' for non-interactive output")
	}

	skip, _ := cmd.Flags().GetStringSlice("skip")
	src, err := loadSource(cmd.Context(), args[0], skip)
	if err != nil {
		return err
	}
	if pdf, _ := cmd.Flags().GetString("pdf"); pdf != "" {
		src.PDFPath = pdf
	}

	// The TUI owns the terminal; keep console logs off it.
	if cfg.LogFile == "" {
		logging.Discard()
	}

	sess := session.FromAnalysis(src.Analysis,
		session.WithUndoWindow(cfg.UndoWindow),
		session.WithLogger(logging.Component("session")),
	)
	defer sess.Close()

	themeName, _ := cmd.Flags().GetString("theme")
	if themeName == "" {
		themeName = cfg.Theme
	}
	outDir, _ := cmd.Flags().GetString("out")

	filename := src.Analysis.Filename
	if src.PDFPath != "" {
		filename = filepath.Base(src.PDFPath)
	}

	opts := []tui.Option{
		tui.WithTheme(tui.NewTheme(themeName)),
		tui.WithFilename(filename),
		tui.WithOutputDir(outDir),
	}
	if src.PDFPath != "" {
		opts = append(opts, tui.WithGenerator(pdfGenerator(src.PDFPath)))
	}

	result, err := tui.Run(sess, opts...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	fmt.Print(result.Report())

	if savePath, _ := cmd.Flags().GetString("save"); savePath != "" {
		reviewed := *src.Analysis
		reviewed.Redactions = result.Redactions
		if err := writeJSON(savePath, reviewed); err != nil {
			return fmt.Errorf("saving review: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Review saved to %s\n", savePath)
	}
	return nil
}

// pdfGenerator sends the original PDF with the final redactions to the
// service.
func pdfGenerator(pdfPath string) tui.Generator {
	client := newClient()
	return func(ctx context.Context, redactions []model.Span) ([]byte, error) {
		if err := validatePDF(pdfPath); err != nil {
			return nil, err
		}
		f, err := os.Open(pdfPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return client.Generate(ctx, filepath.Base(pdfPath), f, redactions)
	}
}
