package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"peershield/core"
	"peershield/rpc"
)

const (
	envRPCSecret  = "PEERSHIELD_RPC_SECRET"
	requestTimeout = 15 * time.Second
)

type command func(g globals, args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"create":        runCreate,
	"top-up":        runTopUp,
	"set-recipient": runSetRecipient,
	"approve":       idCommand("approve", (*rpc.Client).Approve),
	"refund":        idCommand("refund", (*rpc.Client).Refund),
	"claim":         idCommand("claim", (*rpc.Client).Claim),
	"provide":       runProvide,
	"receive":       runReceive,
	"list":          runList,
	"claims":        runClaims,
	"details":       runDetails,
	"pool":          runPool,
	"info":          runInfo,
	"outbox":        runOutbox,
	"token":         runToken,
}

func runCoverageCommand(g globals, args []string, stdout, stderr io.Writer) int {
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return cmd(g, args[1:], stdout, stderr)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleCallError(w io.Writer, err error) int {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		fmt.Fprintf(w, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

func writeResult(w io.Writer, result interface{}) int {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return printError(w, err.Error())
	}
	fmt.Fprintln(w, string(encoded))
	return 0
}

func withClient(g globals, fn func(ctx context.Context, c *rpc.Client) (interface{}, error), stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := fn(ctx, rpc.NewClient(g.endpoint, g.token))
	if err != nil {
		return handleCallError(stderr, err)
	}
	return writeResult(stdout, result)
}

func validateAmount(flagName, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("--%s is required", flagName)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fmt.Errorf("--%s must be a decimal integer", flagName)
		}
	}
	return nil
}

func parseOptionalUint(flagName, raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("--%s must be a non-negative integer", flagName)
	}
	return &v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type agreementFlags struct {
	id          string
	recipient   string
	title       string
	description string
	endHeight   string
	endTime     string
	whitelist   string
}

func (a *agreementFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.id, "id", "", "agreement identifier")
	fs.StringVar(&a.recipient, "recipient", "", "optional payout recipient")
	fs.StringVar(&a.title, "title", "", "agreement title")
	fs.StringVar(&a.description, "description", "", "agreement description")
	fs.StringVar(&a.endHeight, "end-height", "", "optional expiry height")
	fs.StringVar(&a.endTime, "end-time", "", "optional expiry time in unix seconds")
	fs.StringVar(&a.whitelist, "whitelist", "", "comma separated token contracts accepted for top-up")
}

func (a *agreementFlags) params() (rpc.CreateParams, error) {
	if strings.TrimSpace(a.id) == "" {
		return rpc.CreateParams{}, errors.New("--id is required")
	}
	endHeight, err := parseOptionalUint("end-height", a.endHeight)
	if err != nil {
		return rpc.CreateParams{}, err
	}
	endTime, err := parseOptionalUint("end-time", a.endTime)
	if err != nil {
		return rpc.CreateParams{}, err
	}
	return rpc.CreateParams{
		ID:             a.id,
		Recipient:      a.recipient,
		Title:          a.title,
		Description:    a.description,
		EndHeight:      endHeight,
		EndTime:        endTime,
		TokenWhitelist: splitList(a.whitelist),
	}, nil
}

func runCreate(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	var (
		agreement agreementFlags
		funds     string
	)
	agreement.register(fs)
	fs.StringVar(&funds, "funds", "", "native amount funding the agreement")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	params, err := agreement.params()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := validateAmount("funds", funds); err != nil {
		return printError(stderr, err.Error())
	}
	params.Funds = strings.TrimSpace(funds)
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.Create(ctx, params)
	}, stdout, stderr)
}

func runTopUp(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("top-up", stderr)
	var id, funds string
	fs.StringVar(&id, "id", "", "agreement identifier")
	fs.StringVar(&funds, "funds", "", "native amount to add")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	if err := validateAmount("funds", funds); err != nil {
		return printError(stderr, err.Error())
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.TopUp(ctx, id, strings.TrimSpace(funds))
	}, stdout, stderr)
}

func runSetRecipient(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-recipient", stderr)
	var id, recipient string
	fs.StringVar(&id, "id", "", "agreement identifier")
	fs.StringVar(&recipient, "recipient", "", "payout recipient")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	if strings.TrimSpace(recipient) == "" {
		return printError(stderr, "--recipient is required")
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.SetRecipient(ctx, id, recipient)
	}, stdout, stderr)
}

func idCommand(name string, call func(*rpc.Client, context.Context, string) (*core.Result, error)) command {
	return func(g globals, args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		var id string
		fs.StringVar(&id, "id", "", "agreement identifier")
		if !parseFlags(fs, args, stderr) {
			return 1
		}
		if strings.TrimSpace(id) == "" {
			return printError(stderr, "--id is required")
		}
		return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
			return call(c, ctx, id)
		}, stdout, stderr)
	}
}

func runProvide(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("provide", stderr)
	var funds string
	fs.StringVar(&funds, "funds", "", "native amount to contribute")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if err := validateAmount("funds", funds); err != nil {
		return printError(stderr, err.Error())
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.ProvideCoverage(ctx, strings.TrimSpace(funds))
	}, stdout, stderr)
}

func runReceive(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receive", stderr)
	var (
		agreement agreementFlags
		sender    string
		amount    string
		kind      string
	)
	agreement.register(fs)
	fs.StringVar(&sender, "sender", "", "account that sent the tokens")
	fs.StringVar(&amount, "amount", "", "token amount received")
	fs.StringVar(&kind, "type", "", "create, topUp or provideCoverage")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(sender) == "" {
		return printError(stderr, "--sender is required")
	}
	if err := validateAmount("amount", amount); err != nil {
		return printError(stderr, err.Error())
	}
	inner := rpc.ReceiveInner{Type: kind}
	switch kind {
	case "create":
		params, err := agreement.params()
		if err != nil {
			return printError(stderr, err.Error())
		}
		inner.ID = params.ID
		inner.Recipient = params.Recipient
		inner.Title = params.Title
		inner.Description = params.Description
		inner.EndHeight = params.EndHeight
		inner.EndTime = params.EndTime
		inner.TokenWhitelist = params.TokenWhitelist
	case "topUp":
		if strings.TrimSpace(agreement.id) == "" {
			return printError(stderr, "--id is required")
		}
		inner.ID = agreement.id
	case "provideCoverage":
	default:
		return printError(stderr, "--type must be create, topUp or provideCoverage")
	}
	params := rpc.ReceiveParams{Sender: sender, Amount: strings.TrimSpace(amount), Msg: inner}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.Receive(ctx, params)
	}, stdout, stderr)
}

func runList(g globals, args []string, stdout, stderr io.Writer) int {
	if !parseFlags(newFlagSet("list", stderr), args, stderr) {
		return 1
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.List(ctx)
	}, stdout, stderr)
}

func runClaims(g globals, args []string, stdout, stderr io.Writer) int {
	if !parseFlags(newFlagSet("claims", stderr), args, stderr) {
		return 1
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.ListClaims(ctx)
	}, stdout, stderr)
}

func runDetails(g globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("details", stderr)
	var id string
	fs.StringVar(&id, "id", "", "agreement identifier")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.Details(ctx, id)
	}, stdout, stderr)
}

func runPool(g globals, args []string, stdout, stderr io.Writer) int {
	if !parseFlags(newFlagSet("pool", stderr), args, stderr) {
		return 1
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.Pool(ctx)
	}, stdout, stderr)
}

func runInfo(g globals, args []string, stdout, stderr io.Writer) int {
	if !parseFlags(newFlagSet("info", stderr), args, stderr) {
		return 1
	}
	return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
		return c.NodeInfo(ctx)
	}, stdout, stderr)
}

func runOutbox(g globals, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "outbox requires a subcommand: pending or ack")
	}
	switch args[0] {
	case "pending":
		fs := newFlagSet("outbox pending", stderr)
		limit := fs.Int("limit", 0, "maximum number of entries")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
			return c.OutboxPending(ctx, *limit)
		}, stdout, stderr)
	case "ack":
		fs := newFlagSet("outbox ack", stderr)
		rawIDs := fs.String("ids", "", "comma separated entry ids")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		var ids []int64
		for _, part := range splitList(*rawIDs) {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return printError(stderr, fmt.Sprintf("invalid entry id %q", part))
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return printError(stderr, "--ids is required")
		}
		return withClient(g, func(ctx context.Context, c *rpc.Client) (interface{}, error) {
			return c.OutboxAck(ctx, ids)
		}, stdout, stderr)
	default:
		return printError(stderr, fmt.Sprintf("unknown outbox subcommand %q", args[0]))
	}
}

func runToken(_ globals, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		subject string
		issuer  string
		scopes  string
		secret  string
		ttl     time.Duration
	)
	fs.StringVar(&subject, "subject", "", "caller address carried by the token")
	fs.StringVar(&issuer, "issuer", "peershield", "token issuer")
	fs.StringVar(&scopes, "scopes", "", "comma separated scopes, e.g. outbox")
	fs.StringVar(&secret, "secret", "", "HMAC secret (defaults to $"+envRPCSecret+")")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if secret == "" {
		secret = os.Getenv(envRPCSecret)
	}
	token, err := rpc.IssueToken(secret, issuer, subject, splitList(scopes), ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}
