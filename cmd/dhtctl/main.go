package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/ringdht/internal/client"
	"github.com/danmuck/ringdht/internal/logging"
)

const usage = `usage: dhtctl [-addr host:port] [-timeout d] <command> [args]

commands:
  insert <ssn> <name> <email>
  remove <ssn>
  lookup <ssn>
  stun
  getnode
`

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "dhtctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dhtctl", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:7400", "ring member to contact")
	timeout := fs.Duration("timeout", 5*time.Second, "per-request timeout")
	replyHost := fs.String("reply-host", "127.0.0.1", "IPv4 address lookup replies are sent to")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	c := client.New(*addr)
	c.Timeout = *timeout
	c.ReplyHost = *replyHost
	ctx, cancel := context.WithTimeout(context.Background(), 2**timeout)
	defer cancel()

	cmd, params := rest[0], rest[1:]
	switch cmd {
	case "insert":
		if len(params) != 3 {
			return fmt.Errorf("insert takes <ssn> <name> <email>")
		}
		return c.Insert(ctx, params[0], params[1], params[2])
	case "remove":
		if len(params) != 1 {
			return fmt.Errorf("remove takes <ssn>")
		}
		return c.Remove(ctx, params[0])
	case "lookup":
		if len(params) != 1 {
			return fmt.Errorf("lookup takes <ssn>")
		}
		rec, found, err := c.Lookup(ctx, params[0])
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{
			"found": found,
			"ssn":   rec.SSN,
			"name":  rec.Name,
			"email": rec.Email,
		})
	case "stun":
		ip, err := c.Stun(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"addr": ip.String()})
	case "getnode":
		node, err := c.GetNode(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"node": node.String()})
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
