package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/server"
)

const consoleHelp = `  send <message>             broadcast to every connected client
  sendto <socket> <message>  send to one client
  keys                       show cached session keys
  sockets                    show connected clients
  prefetch <n>               fetch n keys for future clients
  publishkeys <n> [topic]    fetch n keys for the publish topic
  seq                        show the publish sequence number
  help                       show this text
  quit                       stop the server
`

// console is the part of the server the interactive console drives.
type console interface {
	ProvideInput(port string, value any) error
	ShowKeys() (string, error)
	ShowSockets() (string, error)
	PrefetchKeysForFutureClients(n int) error
	PrefetchKeysForPublish(n int, topic string) error
	PublishSeqNum() (uint64, error)
}

// runConsole executes one console line against srv. It reports whether the
// console should exit.
func runConsole(srv console, line string, out io.Writer) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(out, consoleHelp)
		return false, nil
	case "send":
		if rest == "" {
			return false, fmt.Errorf("usage: send <message>")
		}
		return false, srv.ProvideInput(server.PortToSend, domain.Broadcast([]byte(rest)))
	case "sendto":
		idStr, msg, ok := strings.Cut(rest, " ")
		if !ok || msg == "" {
			return false, fmt.Errorf("usage: sendto <socket> <message>")
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return false, fmt.Errorf("bad socket %q: %w", idStr, err)
		}
		return false, srv.ProvideInput(server.PortToSend, domain.Unicast(domain.ConnID(id), []byte(msg)))
	case "keys":
		s, err := srv.ShowKeys()
		if err == nil {
			fmt.Fprint(out, s)
		}
		return false, err
	case "sockets":
		s, err := srv.ShowSockets()
		if err == nil {
			fmt.Fprint(out, s)
		}
		return false, err
	case "prefetch":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return false, fmt.Errorf("usage: prefetch <n>")
		}
		return false, srv.PrefetchKeysForFutureClients(n)
	case "publishkeys":
		nStr, topic, _ := strings.Cut(rest, " ")
		n, err := strconv.Atoi(nStr)
		if err != nil {
			return false, fmt.Errorf("usage: publishkeys <n> [topic]")
		}
		return false, srv.PrefetchKeysForPublish(n, strings.TrimSpace(topic))
	case "seq":
		seq, err := srv.PublishSeqNum()
		if err == nil {
			fmt.Fprintf(out, "publish sequence number: %d\n", seq)
		}
		return false, err
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}
