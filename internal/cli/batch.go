package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/batch"
	"github.com/sprite-ai/redline/internal/detect"
)

var batchCmd = &cobra.Command{
	Use:   "batch <pattern>...",
	Short: "Analyze many PDFs at once",
	Long: `Analyze every PDF matching the given paths or glob patterns. Patterns
support ** for recursive matches. Files with a name already queued are
skipped; files failing the upload checks are reported without contacting
the service.

Examples:
  redline batch contracts/*.pdf
  redline batch 'inbox/**/*.pdf' --out analyses/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringP("out", "o", "", "directory to write one <name>.json analysis per file")
	batchCmd.Flags().IntP("workers", "w", 0, "files analyzed at once (default from config)")
	batchCmd.Flags().BoolP("quiet", "q", false, "do not print per-file progress")
}

func runBatch(cmd *cobra.Command, args []string) error {
	paths, err := expandPatterns(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No files matched.")
		return nil
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	opts := []batch.Option{
		batch.WithWorkers(workers),
		batch.WithMaxUpload(cfg.MaxUploadBytes),
	}
	if !quiet {
		opts = append(opts, batch.WithProgress(printProgress))
	}

	res := batch.NewRunner(newClient(), opts...).Run(cmd.Context(), paths)

	for _, p := range res.Skipped {
		warnf("skipped %s: a file with the same name is already queued", p)
	}

	outDir, _ := cmd.Flags().GetString("out")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	fmt.Printf("%d analyzed, %d failed, %d skipped\n\n", len(res.Analyzed), len(res.Failed()), len(res.Skipped))
	for _, a := range res.Analyzed {
		fmt.Printf("  %-40s %8s  %s\n", filepath.Base(a.Path), byteCount(a.Analysis.FileSize), detect.Summary(a.Analysis.Redactions))
		if outDir != "" {
			name := strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path)) + ".json"
			if err := writeJSON(filepath.Join(outDir, name), a.Analysis); err != nil {
				return fmt.Errorf("writing analysis for %s: %w", a.Path, err)
			}
		}
	}
	for _, it := range res.Failed() {
		fmt.Printf("  %-40s %8s  error: %v\n", it.Name, byteCount(it.Size), it.Err)
	}

	if len(res.Failed()) > 0 {
		return fmt.Errorf("%d file(s) failed", len(res.Failed()))
	}
	return nil
}

// expandPatterns resolves glob patterns. Plain paths pass through so a
// missing file is reported by pre-flight rather than silently dropped.
func expandPatterns(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			paths = append(paths, arg)
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(arg)) {
			return nil, fmt.Errorf("invalid pattern %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func printProgress(it batch.Item) {
	fmt.Fprintf(os.Stderr, "  [%3d%%] %-10s %s\n", it.Progress, it.State, it.Name)
}

func byteCount(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
