package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitfetch/internal/device"
	"github.com/tanq16/splitfetch/internal/downloads"
	"github.com/tanq16/splitfetch/internal/fetcher"
	"github.com/tanq16/splitfetch/internal/metadata"
	"github.com/tanq16/splitfetch/internal/output"
	"github.com/tanq16/splitfetch/internal/utils"
)

func newURLCmd() *cobra.Command {
	var flags deviceFlags
	cmd := &cobra.Command{
		Use:   "url STAGE",
		Short: "Print the URL a split stage would be fetched from (arch, theme, lang, enlang)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			stage, err := fetcher.ParseStage(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			store := loadPrefsOrExit()
			ctx := cmd.Context()
			snap := fetcher.SnapshotFromValues(store.Read())
			client := utils.NewSplitHTTPClient(globalHTTPConfig)
			snap.Version, err = metadata.NewClient(client, downloads.NewS3Backend(flags.s3Profile)).Version(ctx, snap.BaseURL)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			abis, err := flags.abiSource(device.NewADB(flags.adbPath, flags.serial)).SupportedABIs(ctx)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			snap.ABI = fetcher.SelectABI(abis)
			link, err := fetcher.StageURL(snap, stage)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			fmt.Println(link)
		},
	}
	flags.register(cmd)
	return cmd
}
