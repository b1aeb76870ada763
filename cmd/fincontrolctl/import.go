package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/session"
)

type importCmd struct {
	user   string
	format string
	in     string
	mode   string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "restore a backup into one user's data" }
func (*importCmd) Usage() string {
	return `fincontrolctl import -user <uid> [-format json|zip] [-mode merge|replace] [-i <file>]

  Restores a backup written by "export". Every document is stored under -user
  whoever exported it. merge upserts by id and keeps everything else; replace
  deletes the user's financial data first. Reads stdin without -i.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User to restore into.")
	f.StringVar(&c.format, "format", string(export.FormatJSON), "Backup format (json or zip).")
	f.StringVar(&c.mode, "mode", string(export.ModeMerge), "merge or replace.")
	f.StringVar(&c.in, "i", "", "Read the backup from this file.")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	format, err := export.ParseFormat(c.format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	mode, err := export.ParseMode(c.mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	var r io.Reader = os.Stdin
	if c.in != "" {
		f, err := os.Open(c.in)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		r = f
	}
	b, err := export.Decode(r, format)
	if err != nil {
		return fail(err)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	res, err := e.deps.Exporter.Import(session.WithUser(ctx, c.user), b, mode)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(os.Stdout, res); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type deleteAllCmd struct {
	user    string
	confirm bool
}

func (*deleteAllCmd) Name() string     { return "delete-all" }
func (*deleteAllCmd) Synopsis() string { return "delete one user's financial data" }
func (*deleteAllCmd) Usage() string {
	return `fincontrolctl delete-all -user <uid> -yes

  Deletes the user's accounts, transactions, debts, recurring templates and
  runs, budgets, goals and currencies. The profile and notifications stay.
`
}

func (c *deleteAllCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User whose data is deleted.")
	f.BoolVar(&c.confirm, "yes", false, "Confirm the deletion.")
}

func (c *deleteAllCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" || !c.confirm {
		fmt.Fprintln(os.Stderr, "Error: -user and -yes are required")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	res, err := e.deps.Exporter.DeleteAll(session.WithUser(ctx, c.user))
	if err != nil {
		return fail(err)
	}
	if err := printJSON(os.Stdout, res); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
