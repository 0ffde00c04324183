package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		page = page.WithSection("Environment",
			"SPEAKDOC_CONFIG_HOME overrides the configuration directory.\n"+
				"SPEAKDOC_DEBUG enables debug logging.\n"+
				"SPEAKDOC_LOG_FILE writes logs to the given file instead of stderr.\n"+
				"AWS credentials are read from the standard AWS environment and shared config, "+
				"and from a .env file in the working directory.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
