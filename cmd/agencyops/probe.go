package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agencyops/internal/probe"
)

type probeFlags struct {
	json bool
	only []string
}

func newProbeCmd(g *globalFlags) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that provider credentials work",
		Long: `Calls a read-only endpoint of each provider with the resolved credentials.
Providers without credentials report not_configured.

Exit status is 1 when any probe reports an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load(loadOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.resolver()
			if err != nil {
				return fmt.Errorf("load credentials: %w", err)
			}
			p, err := e.prober(nil)
			if err != nil {
				return err
			}
			results := p.Run(cmd.Context(), res, f.only...)

			out := cmd.OutOrStdout()
			if f.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else if err := printProbes(out, results); err != nil {
				return err
			}

			for _, r := range results {
				if r.Status == probe.StatusError {
					return &exitError{code: 1}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "print results as JSON")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "probe only these integrations (default: all)")
	return cmd
}

func printProbes(w io.Writer, results []probe.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "INTEGRATION\tSTATUS\tHTTP\tLATENCY\tDETAIL\n")
	for _, r := range results {
		httpStatus, latency := "-", "-"
		if r.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(r.HTTPStatus)
		}
		if r.LatencyMS != 0 {
			latency = fmt.Sprintf("%dms", r.LatencyMS)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Integration, r.Status, httpStatus, latency, r.Detail)
	}
	return tw.Flush()
}
