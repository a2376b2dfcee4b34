package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitfetch/internal/output"
	"github.com/tanq16/splitfetch/internal/prefs"
)

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change stored preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [KEY]",
		Short: "Print one preference, or all of them",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := loadPrefsOrExit()
			keys := store.Keys()
			if len(args) == 1 {
				keys = args
			}
			for _, key := range keys {
				value, err := store.Get(key)
				if err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				if len(args) == 1 {
					fmt.Println(value)
					continue
				}
				fmt.Printf("%s = %s\n", output.FInfo(key), value)
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a preference",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := loadPrefsOrExit()
			if err := store.Set(args[0], args[1]); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := store.Save(); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s saved to %s", args[0], store.Path()))
		},
	})
	return cmd
}

func loadPrefsOrExit() *prefs.Store {
	store, err := prefs.Load(prefsPath)
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	return store
}
