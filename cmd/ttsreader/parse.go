package main

import (
	"fmt"
	"os"

	"github.com/example/tts-reader/internal/script"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	var (
		scriptPath string
		view       string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a script file and print one of its derived views",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if scriptPath == "" {
				return fmt.Errorf("--script is required")
			}

			text, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			doc, err := script.Parse(string(text))
			if err != nil {
				return err
			}
			if doc.Skipped > 0 {
				_, _ = fmt.Fprintf(os.Stderr, "warning: %d line(s) skipped\n", doc.Skipped)
			}

			display := script.DisplayScript(doc)
			if cfg.Normalize.DialectRewrite {
				display = script.ApplyDialectRewrite(display)
			}

			switch view {
			case "display":
				_, _ = fmt.Fprintln(os.Stdout, display)
			case "alignment":
				_, _ = fmt.Fprintln(os.Stdout, script.AlignmentText(display))
			default:
				return fmt.Errorf("unknown view %q (want display|alignment)", view)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "Path to the script file")
	cmd.Flags().StringVar(&view, "view", "display", "View to print (display|alignment)")

	return cmd
}
