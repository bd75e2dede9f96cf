package commands

import (
	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/app"
	"github.com/lsmon/iotauth/internal/config"
)

var (
	configFile string
	passphrase string
	wire       *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:          "securecomm",
		Short:        "Secure communication server backed by a key distribution authority",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "f", "securecomm.toml", "path to the TOML config")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity")

	root.AddCommand(initCmd(), fingerprintCmd(), serveCmd(), connectCmd())
	return root.Execute()
}
