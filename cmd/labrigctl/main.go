// labrigctl is a noun-group control CLI for a running labrigd: it talks to
// the orchestrator's RemoteTransport endpoint and issues module, thread,
// task, and configuration operations.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/remote"
)

var (
	addr     string
	certFile string
	keyFile  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "labrigctl",
	Short:         "Control a running labrigd orchestrator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:18861", "host:port of the orchestrator's remote transport")
	rootCmd.PersistentFlags().StringVar(&certFile, "certfile", "", "TLS client certificate")
	rootCmd.PersistentFlags().StringVar(&keyFile, "keyfile", "", "TLS client key")

	rootCmd.AddCommand(moduleCmd, threadCmd, taskCmd, configCmd)
}

// dial opens a connection to the orchestrator's remote transport, used by
// every subcommand that needs a live round trip.
func dial() (*remote.Client, string, int, error) {
	host, port, err := splitAddr(addr)
	if err != nil {
		return nil, "", 0, err
	}
	client := remote.NewClient()
	var cert, key *string
	if certFile != "" && keyFile != "" {
		cert, key = &certFile, &keyFile
	}
	if err := client.Dial(host, port, cert, key); err != nil {
		return nil, "", 0, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return client, host, port, nil
}

func splitAddr(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in --addr %q: %w", hostport, err)
	}
	return host, port, nil
}
