package commands

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/transport"
)

func connectCmd() *cobra.Command {
	var (
		addr  string
		group string
		keyID uint64
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a server as a client and exchange messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if addr == "" {
				addr = wire.Config.Server.Address
			}
			id, err := wire.Identity.LoadIdentity(passphrase)
			if err != nil {
				return err
			}

			purpose := domain.PurposeGroup(group)
			if keyID != 0 {
				purpose = domain.PurposeKeyID(domain.KeyID(keyID))
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resp, err := wire.AuthClient(id).RequestSessionKeys(ctx, domain.SessionKeyRequest{
				RequesterName: domain.EntityName(wire.Config.Entity.Name),
				Purpose:       purpose,
				NumKeys:       1,
			})
			if err != nil {
				return err
			}
			key := resp.Keys[0]

			c, err := transport.Dial(ctx, addr, key)
			if err != nil {
				return err
			}
			defer c.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connected to %s with key %d\n", addr, key.ID)

			go func() {
				for {
					m, err := c.Receive()
					if err != nil {
						fmt.Fprintf(out, "connection closed: %v\n", err)
						return
					}
					fmt.Fprintf(out, "[seq %d] %s\n", m.Seq, m.Data)
				}
			}()

			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if err := c.Send(sc.Bytes()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default Server.Address from the config)")
	cmd.Flags().StringVar(&group, "group", "Servers", "group whose key to request")
	cmd.Flags().Uint64Var(&keyID, "key-id", 0, "request a specific issued key instead of a group key")
	return cmd
}
