package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/session"
)

type reconcileCmd struct {
	user string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "check stored account balances against their transactions" }
func (*reconcileCmd) Usage() string {
	return `fincontrolctl reconcile -user <uid>

  Recomputes each account's balance from its opening balance and
  transactions and reports any drift. Nothing is written. Exits non-zero
  when an account has drifted.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User whose accounts to check.")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx = session.WithUser(ctx, c.user)
	accounts, err := e.deps.Ledger.ListAccounts(ctx)
	if err != nil {
		return fail(err)
	}

	status := subcommands.ExitSuccess
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tNAME\tSTORED\tCOMPUTED\tDRIFT\tTXS")
	for _, a := range accounts {
		rec, err := e.deps.Ledger.Reconcile(ctx, a.ID)
		if err != nil {
			w.Flush()
			return fail(err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", a.ID, a.Name,
			money.Format(rec.StoredCents, a.Currency),
			money.Format(rec.ComputedCents, a.Currency),
			money.Format(rec.DriftCents, a.Currency),
			rec.Transactions)
		if !rec.Balanced() {
			status = subcommands.ExitFailure
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return status
}
