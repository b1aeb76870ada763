package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/config"
	"github.com/CristhianDaza/finControl/internal/search"
	"github.com/CristhianDaza/finControl/internal/session"
)

type searchSetupCmd struct {
	reindex string
}

func (*searchSetupCmd) Name() string     { return "search-setup" }
func (*searchSetupCmd) Synopsis() string { return "configure the Algolia transaction index" }
func (*searchSetupCmd) Usage() string {
	return `fincontrolctl search-setup [-reindex <uid>]

  Applies the index settings transaction search relies on. With -reindex,
  also pushes every transaction of that user into the index.
`
}

func (c *searchSetupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.reindex, "reindex", "", "Reindex this user's transactions after configuring.")
}

func (c *searchSetupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fail(err)
	}
	if !cfg.Algolia.Enabled() {
		return fail(fmt.Errorf("ALGOLIA_APP_ID and ALGOLIA_API_KEY are required"))
	}

	client, err := search.NewAlgoliaClient(search.Config{
		AppID:     cfg.Algolia.AppID,
		APIKey:    cfg.Algolia.APIKey,
		IndexName: cfg.Algolia.IndexName,
	})
	if err != nil {
		return fail(err)
	}
	if err := client.ConfigureIndex(ctx); err != nil {
		return fail(err)
	}
	fmt.Printf("Configured index %s\n", client.IndexName())

	if c.reindex == "" {
		return subcommands.ExitSuccess
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	svc := search.NewService(e.deps.Session, client, client)
	n, err := svc.Reindex(session.WithUser(ctx, c.reindex))
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stdout, "Indexed %d transactions for %s\n", n, c.reindex)
	return subcommands.ExitSuccess
}
