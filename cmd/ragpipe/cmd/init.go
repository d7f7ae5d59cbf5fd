package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/config"
	"github.com/ragpipe-dev/ragpipe/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  `Write a ` + config.ConfigFileName + ` with default settings into the project directory.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := output.New(os.Stdout)
			path := filepath.Join(flagDir, config.ConfigFileName)

			if _, err := os.Stat(path); err == nil && !force {
				w.Warningf("%s already exists, use --force to overwrite", path)
				return nil
			}

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}
			w.Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
