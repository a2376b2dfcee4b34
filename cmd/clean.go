package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitfetch/internal/output"
	"github.com/tanq16/splitfetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Clean up temporary files left by interrupted downloads",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := defaultOutputDir
			if len(args) > 0 {
				dir = args[0]
			}
			if err := utils.Clean(dir); err != nil {
				output.PrintError("Error cleaning up temporary files: " + err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
		},
	}
}
