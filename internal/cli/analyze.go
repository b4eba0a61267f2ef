package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/service"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.pdf>",
	Short: "Analyze a PDF with the service and print the proposed redactions",
	Long: `Upload a PDF to the analysis service and print the extracted text and
proposed redactions as JSON. The output can be reviewed later with
'redline review analysis.json --pdf file.pdf'.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "write the analysis to this file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := analyzePDF(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if err := writeJSON(out, a); err != nil {
		return fmt.Errorf("writing analysis: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", a.Filename, detect.Summary(a.Redactions))
	return nil
}

// validatePDF runs the upload pre-flight checks with the configured limit.
func validatePDF(path string) error {
	return service.ValidateFile(path, cfg.MaxUploadBytes)
}
