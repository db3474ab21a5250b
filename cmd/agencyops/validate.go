package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"agencyops/internal/tenant"
)

type validateFlags struct {
	tenant string
	all    bool
	json   bool
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	f := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate tenant configs under clients/",
		Long: `Checks clients/<id>/config.json for required fields, enum values,
timestamps, contact email and feature flags, and warns about missing
logs/ or automation-status.json.

Exit status is 1 when any validated tenant has errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "validate a single tenant id")
	cmd.Flags().BoolVar(&f.all, "all", false, "validate every tenant (skips _ and . prefixed dirs)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print results as JSON")
	cmd.MarkFlagsMutuallyExclusive("tenant", "all")
	cmd.MarkFlagsOneRequired("tenant", "all")
	return cmd
}

func runValidate(cmd *cobra.Command, g *globalFlags, f *validateFlags) error {
	e, err := g.load(loadOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	var results []tenant.Result
	if f.all {
		results, err = tenant.ValidateAll(e.clientsDir())
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
	} else {
		results = []tenant.Result{tenant.Validate(e.clientsDir(), f.tenant)}
	}

	out := cmd.OutOrStdout()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []tenant.Result{}
		}
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	for _, r := range results {
		if !r.Valid {
			return &exitError{code: 1}
		}
	}
	return nil
}

func printResults(w io.Writer, results []tenant.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no tenants found")
		return
	}
	invalid := 0
	for _, r := range results {
		mark := "ok"
		if !r.Valid {
			mark = "FAIL"
			invalid++
		}
		fmt.Fprintf(w, "%-4s %s\n", mark, r.TenantID)
		for _, msg := range r.Errors {
			fmt.Fprintf(w, "     error: %s\n", msg)
		}
		for _, msg := range r.Warnings {
			fmt.Fprintf(w, "     warning: %s\n", msg)
		}
	}
	fmt.Fprintf(w, "\n%d tenant(s), %d invalid\n", len(results), invalid)
}
