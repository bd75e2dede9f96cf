package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/app"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server with an interactive console",
		Long:  "Run the server with an interactive console. Console commands:\n" + consoleHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			a, err := app.New(wire, passphrase)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a.Server.SetOutputHandler(server.OutputConnection, func(v any) { fmt.Fprintln(out, v) })
			a.Server.SetOutputHandler(server.OutputError, func(v any) { fmt.Fprintln(out, v) })
			a.Server.SetOutputHandler(server.OutputListening, func(v any) { fmt.Fprintf(out, "listening on %v\n", v) })
			a.Server.SetOutputHandler(server.OutputReceived, func(v any) {
				if r, ok := v.(domain.Received); ok {
					fmt.Fprintf(out, "[socket #%d] %s\n", r.ConnID, r.Data)
				}
			})
			if err := a.Start(); err != nil {
				return err
			}
			defer a.Halt()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-sig:
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					quit, err := runConsole(a.Server, line, out)
					if err != nil {
						fmt.Fprintf(out, "error: %v\n", err)
					}
					if quit {
						return nil
					}
				}
			}
		},
	}
}
