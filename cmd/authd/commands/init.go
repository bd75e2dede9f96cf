package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/authority"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the authority signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := authority.CreateSigningKey(cfg.Authority.DataDir)
			if err != nil {
				return err
			}
			fmt.Printf("Signing key created in %s.\n", authority.SigningKeyPath(cfg.Authority.DataDir))
			fmt.Printf("\n[Auth]\n  PublicKey = %q\n", hex.EncodeToString(pub[:]))
			return nil
		},
	}
}
