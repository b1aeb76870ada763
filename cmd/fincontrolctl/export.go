package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/session"
)

type exportCmd struct {
	user   string
	format string
	out    string
	bucket bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "back up one user's data" }
func (*exportCmd) Usage() string {
	return `fincontrolctl export -user <uid> [-format json|zip] [-o <file> | -bucket]

  Writes a versioned backup of the user's accounts, transactions, debts,
  recurring templates and runs, budgets, goals and currencies. Without -o or
  -bucket the backup goes to stdout. -bucket stores it in the configured
  export bucket.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User to export.")
	f.StringVar(&c.format, "format", string(export.FormatJSON), "Backup format (json or zip).")
	f.StringVar(&c.out, "o", "", "Write the backup to this file.")
	f.BoolVar(&c.bucket, "bucket", false, "Write the backup to the configured export bucket.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	if c.out != "" && c.bucket {
		fmt.Fprintln(os.Stderr, "Error: -o and -bucket cannot be used together")
		return subcommands.ExitUsageError
	}
	format, err := export.ParseFormat(c.format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx = session.WithUser(ctx, c.user)

	if c.bucket {
		if e.cfg.Export.Bucket == "" {
			return fail(fmt.Errorf("no export bucket configured (EXPORT_BUCKET)"))
		}
		sink, client, err := export.OpenGCSSink(ctx, e.cfg.Export.Bucket, e.cfg.Export.Prefix)
		if err != nil {
			return fail(err)
		}
		defer client.Close()
		name, err := e.deps.Exporter.ToSink(ctx, sink, format)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("gs://%s/%s\n", e.cfg.Export.Bucket, sink.ObjectPath(name))
		return subcommands.ExitSuccess
	}

	w := os.Stdout
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		w = f
	}
	b, err := e.deps.Exporter.Write(ctx, w, format)
	if err != nil {
		return fail(err)
	}
	if c.out != "" {
		fmt.Fprintf(os.Stderr, "Exported %d transactions to %s\n", len(b.Collections.Transactions), c.out)
	}
	return subcommands.ExitSuccess
}
