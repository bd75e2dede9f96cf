package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/services/identity"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity fingerprint and its enrollment keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Identity.LoadIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", identity.Fingerprint(id))
			printEnrollment(id.EdPub.Slice(), id.XPub.Slice())
			return nil
		},
	}
}

// printEnrollment prints the authority config stanza for this entity.
func printEnrollment(signing, agreement []byte) {
	fmt.Printf("\n[[Entity]]\n  Name = %q\n  SigningKey = %q\n  AgreementKey = %q\n",
		wire.Config.Entity.Name, hex.EncodeToString(signing), hex.EncodeToString(agreement))
}
