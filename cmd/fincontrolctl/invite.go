package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// adminFlag is shared by the invite commands. Admin operations are checked
// against the named user's profile role.
type adminFlag struct {
	admin string
}

func (a *adminFlag) set(f *flag.FlagSet) {
	f.StringVar(&a.admin, "admin", os.Getenv("FINCONTROL_ADMIN_UID"), "Act as this admin user id. Defaults to $FINCONTROL_ADMIN_UID.")
}

func (a *adminFlag) withAdmin(ctx context.Context) (context.Context, bool) {
	if a.admin == "" {
		fmt.Fprintln(os.Stderr, "Error: -admin is required")
		return ctx, false
	}
	return session.WithUser(ctx, a.admin), true
}

type inviteCreateCmd struct {
	adminFlag
	plan  string
	count int
}

func (*inviteCreateCmd) Name() string     { return "invite-create" }
func (*inviteCreateCmd) Synopsis() string { return "create invite codes" }
func (*inviteCreateCmd) Usage() string {
	return `fincontrolctl invite-create -admin <uid> -plan <monthly|semiannual|annual> [-n <count>]

  Creates invite codes for a plan and prints one code per line.
`
}

func (c *inviteCreateCmd) SetFlags(f *flag.FlagSet) {
	c.adminFlag.set(f)
	f.StringVar(&c.plan, "plan", string(model.PlanMonthly), "Plan granted by the codes.")
	f.IntVar(&c.count, "n", 1, "Number of codes to create.")
}

func (c *inviteCreateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	plan := model.Plan(c.plan)
	if _, ok := access.PlanMonths(plan); !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown plan %q\n", c.plan)
		return subcommands.ExitUsageError
	}
	if c.count < 1 {
		fmt.Fprintln(os.Stderr, "Error: -n must be at least 1")
		return subcommands.ExitUsageError
	}
	ctx, ok := c.withAdmin(ctx)
	if !ok {
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	for i := 0; i < c.count; i++ {
		code, err := e.deps.Access.CreateCode(ctx, plan)
		if err != nil {
			return fail(err)
		}
		fmt.Println(code.Code)
	}
	return subcommands.ExitSuccess
}

type inviteInvalidateCmd struct {
	adminFlag
}

func (*inviteInvalidateCmd) Name() string     { return "invite-invalidate" }
func (*inviteInvalidateCmd) Synopsis() string { return "expire unused invite codes" }
func (*inviteInvalidateCmd) Usage() string {
	return `fincontrolctl invite-invalidate -admin <uid> <code>...
`
}

func (c *inviteInvalidateCmd) SetFlags(f *flag.FlagSet) {
	c.adminFlag.set(f)
}

func (c *inviteInvalidateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one code is required")
		return subcommands.ExitUsageError
	}
	ctx, ok := c.withAdmin(ctx)
	if !ok {
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	status := subcommands.ExitSuccess
	for _, code := range f.Args() {
		if _, err := e.deps.Access.InvalidateCode(ctx, code); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", code, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s: expired\n", access.NormalizeCode(code))
	}
	return status
}

type inviteListCmd struct {
	adminFlag
	status    string
	createdBy string
	limit     int
}

func (*inviteListCmd) Name() string     { return "invite-list" }
func (*inviteListCmd) Synopsis() string { return "list invite codes" }
func (*inviteListCmd) Usage() string {
	return `fincontrolctl invite-list -admin <uid> [-status <unused|used|expired>] [-created-by <uid>] [-limit <n>]
`
}

func (c *inviteListCmd) SetFlags(f *flag.FlagSet) {
	c.adminFlag.set(f)
	f.StringVar(&c.status, "status", "", "Only list codes in this status.")
	f.StringVar(&c.createdBy, "created-by", "", "Only list codes created by this admin.")
	f.IntVar(&c.limit, "limit", 50, "Maximum number of codes.")
}

func (c *inviteListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	switch model.InviteStatus(c.status) {
	case "", model.InviteUnused, model.InviteUsed, model.InviteExpired:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown status %q\n", c.status)
		return subcommands.ExitUsageError
	}
	ctx, ok := c.withAdmin(ctx)
	if !ok {
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	codes, err := e.deps.Access.ListCodes(ctx, store.InviteCodeFilter{
		Status:    model.InviteStatus(c.status),
		CreatedBy: c.createdBy,
		Limit:     c.limit,
	})
	if err != nil {
		return fail(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tPLAN\tSTATUS\tEXPIRES\tUSED BY")
	for _, code := range codes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			code.Code, code.Plan, code.Status, code.ExpiresAt.Format(time.DateOnly), code.UsedBy)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
