package commands

import (
	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/config"
)

var (
	configFile string
	cfg        *config.AuthorityConfig
)

func Execute() error {
	root := &cobra.Command{
		Use:          "authd",
		Short:        "Development key distribution authority",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadAuthorityFile(configFile)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "f", "authd.toml", "path to the TOML config")

	root.AddCommand(initCmd(), serveCmd())
	return root.Execute()
}
