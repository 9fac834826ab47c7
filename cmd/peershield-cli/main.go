package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	envRPCURL   = "PEERSHIELD_RPC_URL"
	envRPCToken = "PEERSHIELD_RPC_TOKEN"
)

type globals struct {
	endpoint string
	token    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g := globals{endpoint: defaultRPCEndpoint(), token: strings.TrimSpace(os.Getenv(envRPCToken))}
	args, err := applyGlobalFlags(&g, args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return runCoverageCommand(g, args, stdout, stderr)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(envRPCURL)); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(g *globals, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				g.endpoint = args[i+1]
			} else {
				g.token = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			g.endpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			g.token = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  peershield-cli [--rpc URL] [--token JWT] <command> [flags]

Commands:
  create         Create an agreement funded with native coins
  top-up         Add native coins to an agreement
  set-recipient  Assign the payout recipient (arbiter only)
  approve        Pay an agreement out to its recipient (arbiter only)
  refund         Return an agreement's funds to its source
  claim          File a claim against an agreement (arbiter only)
  provide        Contribute native coins to the coverage pool
  receive        Relay a token contract notification
  list           List live agreement ids
  claims         List agreements with an open claim
  details        Show one agreement
  pool           Show the coverage pool
  info           Show node information
  outbox         Inspect or acknowledge queued transfers
  token          Sign an RPC bearer token
`)
}
