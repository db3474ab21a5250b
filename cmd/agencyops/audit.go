package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"agencyops/internal/audit"
	"agencyops/pkg/logx"
)

func newAuditCmd(g *globalFlags) *cobra.Command {
	var (
		fix    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit <dir>",
		Short: "Audit HTML documents for SEO and accessibility issues",
		Long: `Walks dir for .html/.htm files and reports rule findings. With --fix the
fixable findings (missing alt text, missing lang) are repaired in place.

Exit status is 1 when any error-severity finding remains.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.load(loadOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			eng := audit.New(e.log.With(logx.String("comp", "audit")))
			rep, err := eng.Run(cmd.Context(), args[0], fix)
			if err != nil {
				return fmt.Errorf("audit %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				for _, f := range rep.Findings {
					fmt.Fprintf(out, "%s: %s [%s] %s\n", f.Path, f.Severity, f.Rule, f.Message)
				}
				fmt.Fprintf(out, "\n%d file(s), %d finding(s), %d error(s), %d fixed\n",
					rep.Files, len(rep.Findings), rep.Errors(), rep.Fixed)
			}

			if rep.Errors() > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply fixers and rewrite changed files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
