package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"transmute/config"
	"transmute/encoder"
)

// CheckDepsCmd reports which operations have their external tool installed.
func CheckDepsCmd(cfg *config.Config) *cobra.Command {
	var strict bool
	checkCmd := &cobra.Command{
		Use:   "check-deps",
		Short: "List external tools and the operations they enable",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := encoder.New(encoder.OptionsFromConfig(cfg)).Report()
			missing := printReport(cmd.OutOrStdout(), report)
			if strict && missing > 0 {
				return fmt.Errorf("%d operations unavailable", missing)
			}
			return nil
		},
	}
	checkCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any tool is missing")
	return checkCmd
}

func printReport(w io.Writer, report []encoder.Availability) int {
	missing := 0
	for _, a := range report {
		mark := "✓"
		if !a.Available {
			mark = "✗"
			missing++
		}
		fmt.Fprintf(w, "%s %-22s %s\n", mark, a.Op, a.Tool)
	}
	return missing
}
