package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/splitfetch/internal/device"
	"github.com/tanq16/splitfetch/internal/downloads"
	"github.com/tanq16/splitfetch/internal/events"
	"github.com/tanq16/splitfetch/internal/fetcher"
	"github.com/tanq16/splitfetch/internal/installer"
	"github.com/tanq16/splitfetch/internal/metadata"
	"github.com/tanq16/splitfetch/internal/output"
	"github.com/tanq16/splitfetch/internal/prefs"
	"github.com/tanq16/splitfetch/internal/utils"
)

const defaultOutputDir = "splits"

type deviceFlags struct {
	abi       string
	adbPath   string
	serial    string
	s3Profile string
}

func (d *deviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.abi, "abi", "", "Comma separated device ABIs (skips adb detection)")
	cmd.Flags().StringVar(&d.adbPath, "adb", "adb", "Path to the adb binary")
	cmd.Flags().StringVarP(&d.serial, "serial", "s", "", "Device serial for adb")
	cmd.Flags().StringVar(&d.s3Profile, "s3-profile", "", "AWS profile for s3:// mirrors")
}

func (d *deviceFlags) abiSource(adb *device.ADB) device.ABISource {
	if d.abi != "" {
		return device.StaticABIs(device.ParseABIList(d.abi))
	}
	return adb
}

func newFetchCmd() *cobra.Command {
	var (
		outputDir string
		dryRun    bool
		flags     deviceFlags
	)
	cmd := &cobra.Command{
		Use:   "fetch [--output DIR]",
		Short: "Download the split set for the configured variant and install it",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store, err := prefs.Load(prefsPath)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := runFetch(ctx, store, outputDir, dryRun, flags); err != nil {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", defaultOutputDir, "Directory for the downloaded splits")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Download only and log the install steps")
	flags.register(cmd)
	return cmd
}

func runFetch(ctx context.Context, store *prefs.Store, dir string, dryRun bool, flags deviceFlags) error {
	hub := events.NewHub()
	client := utils.NewSplitHTTPClient(globalHTTPConfig)
	httpBackend := downloads.NewHTTPBackend(client)
	s3Backend := downloads.NewS3Backend(flags.s3Profile)
	manager := downloads.NewManager(hub)
	defer manager.Close()
	manager.Register("http", httpBackend)
	manager.Register("https", httpBackend)
	manager.Register("s3", s3Backend)

	adb := device.NewADB(flags.adbPath, flags.serial)
	f, err := fetcher.New(fetcher.Config{
		Prefs:            store,
		Metadata:         metadata.NewClient(client, s3Backend),
		ABIs:             flags.abiSource(adb),
		Downloads:        manager,
		Hub:              hub,
		RootInstaller:    &installer.RootSplitInstaller{ADB: adb, DryRun: dryRun},
		NonRootInstaller: &installer.NonRootSplitInstaller{ADB: adb, DryRun: dryRun},
		Dir:              dir,
	})
	if err != nil {
		output.PrintError(err.Error())
		return err
	}
	defer f.Close()

	display := output.NewManager(os.Stdout, output.IsTerminal())
	defer display.Attach(hub)()
	manager.OnProgress(display.Progress)
	if output.IsTerminal() {
		// manager and fetcher close after this, their logs go back to stderr
		if closer, err := utils.SetFileLog(); err == nil {
			defer closer.Close()
		}
	}
	display.StartDisplay()

	if err := f.Start(ctx); err != nil {
		display.StopDisplay()
		output.PrintError("Could not start fetch: " + err.Error())
		return err
	}
	err = f.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn().Str("op", "cmd/fetch").Msg("interrupted")
	}
	display.StopDisplay()
	if err != nil {
		output.PrintError("Fetch failed: " + err.Error())
		return err
	}
	output.PrintSuccess("Fetch complete")
	return nil
}
