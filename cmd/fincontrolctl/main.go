// Command fincontrolctl runs operator tasks against the finControl data
// store: scheduled recurring processing, invite code administration, data
// export and restore, and search index setup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path"

	"cloud.google.com/go/firestore"
	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/config"
	"github.com/CristhianDaza/finControl/internal/recurring"
	"github.com/CristhianDaza/finControl/internal/service"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

var configPath = flag.String("config", "", "path to a YAML config file (default $FINCONTROL_CONFIG)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&processRecurringCmd{}, "recurring")
	commander.Register(&inviteCreateCmd{}, "access")
	commander.Register(&inviteInvalidateCmd{}, "access")
	commander.Register(&inviteListCmd{}, "access")
	commander.Register(&exportCmd{}, "data")
	commander.Register(&importCmd{}, "data")
	commander.Register(&deleteAllCmd{}, "data")
	commander.Register(&reconcileCmd{}, "data")
	commander.Register(&searchSetupCmd{}, "search")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// env is an opened data store with the services wired over it.
type env struct {
	cfg   *config.Config
	store store.Store
	deps  service.Deps
	close func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, close: func() {}}
	if cfg.UseMemoryStore {
		log.Println("Using in-memory store; changes are discarded on exit")
		e.store = store.NewMemoryStore()
	} else {
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		e.store = store.NewFirestoreStore(client)
		e.close = func() { client.Close() }
	}

	sess := session.New(e.store)
	e.deps = service.Wire(sess, service.WireOptions{
		Recurring: []recurring.Option{recurring.WithMinInterval(0)},
	})
	return e, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
