package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Run the local rule detector over plain text",
	Long: `Run the local rule passes (email, phone, organisation) over plain text and
print the result as an analysis. Pages are separated by form feeds. Reads
stdin when no file is given.

Passes: ` + strings.Join(detect.AllPasses(), ", "),
	Args: cobra.MaximumNArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringSlice("skip", nil, "passes to skip")
	detectCmd.Flags().StringP("output", "o", "", "write the analysis to this file instead of stdout")
	detectCmd.Flags().Bool("summary", false, "print only a one-line summary")
}

func runDetect(cmd *cobra.Command, args []string) error {
	skip, _ := cmd.Flags().GetStringSlice("skip")
	if err := detect.ValidatePasses(skip); err != nil {
		return err
	}

	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	data, err := readInput(path)
	if err != nil {
		return err
	}

	name := ""
	if path != "-" {
		name = path
	}
	a := detect.Run(string(data), detect.Options{
		DenyList: cfg.DenyList,
		Skip:     skip,
		Filename: name,
	})

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		fmt.Println(detect.Summary(a.Redactions))
		return nil
	}

	out, _ := cmd.Flags().GetString("output")
	if err := writeJSON(out, a); err != nil {
		return fmt.Errorf("writing analysis: %w", err)
	}
	if out != "" {
		fmt.Fprintf(os.Stderr, "%s\n", detect.Summary(a.Redactions))
	}
	return nil
}
