package cli

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	System string
	Count  int
	Seed   uint64
}

// SeedResult lists the accounts the seed command created.
type SeedResult struct {
	System string   `json:"system"`
	IDs    []string `json:"ids"`
	Names  []string `json:"names"`
}

var (
	industries = []string{"Agriculture", "Apparel", "Banking", "Chemicals", "Education", "Energy", "Retail", "Technology"}
	ratings    = []string{"Hot", "Warm", "Cold"}
	types      = []string{"Prospect", "Customer - Direct", "Customer - Channel", "Partner", "Other"}
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create fake accounts in one org",
		Long: `Create generated accounts in one org through its create flow. The
records are picked up by that org's trigger flow on the next poll.

Example:
  accountsync seed --system A --count 25
  accountsync seed --system B --count 5 --seed 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return seedAccounts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.System, "system", "A", "org to create the accounts in (A|B)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 10, "number of accounts")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "generator seed; 0 picks a random one")

	return cmd
}

// fakeAccounts generates n accounts. Names carry their position so they
// stay unique within one run.
func fakeAccounts(f *gofakeit.Faker, n int) []record.Record {
	records := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, record.AnAccount().
			With("Name", fmt.Sprintf("%s %04d", f.Company(), i+1)).
			With("AccountNumber", fmt.Sprintf("%07d", f.Number(1, 9999999))).
			With("Description", f.Sentence(8)).
			With("Industry", f.RandomString(industries)).
			With("NumberOfEmployees", f.Number(1, 50000)).
			With("Phone", f.Phone()).
			With("Rating", f.RandomString(ratings)).
			With("Type", f.RandomString(types)).
			With("Website", f.URL()).
			With("BillingStreet", f.Street()).
			With("BillingCity", f.City()).
			With("BillingState", f.State()).
			With("BillingPostalCode", f.Zip()).
			With("BillingCountry", f.Country()).
			Build())
	}
	return records
}

func seedAccounts(opts *SeedOptions, cmd *cobra.Command) error {
	system, err := org.ParseSystem(opts.System)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --system", err)
	}
	if opts.Count <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--count must be positive, got %d", opts.Count))
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	tpl, err := openTemplate(opts.RootOptions, logger)
	if err != nil {
		return err
	}
	defer tpl.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	name := flow.CreateAccountInA
	if system == org.SystemB {
		name = flow.CreateAccountInB
	}
	h, err := tpl.Registry().Resolve(name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve create flow", err)
	}
	if err := h.Initialise(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialise create flow", err)
	}

	result := SeedResult{System: string(system), IDs: []string{}, Names: []string{}}
	for _, r := range fakeAccounts(gofakeit.New(opts.Seed), opts.Count) {
		id, err := flow.InvokeCreate(ctx, h, r)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to create account", err)
		}
		result.IDs = append(result.IDs, id)
		result.Names = append(result.Names, record.FormatValue(r[record.FieldName]))
		logger.Debug("account seeded", "system", string(system), "id", id)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	for i, id := range result.IDs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", id, result.Names[i])
	}
	return formatter.Success(fmt.Sprintf("Created %d account(s) in %s", len(result.IDs), system))
}
