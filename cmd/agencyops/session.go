package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type sessionFlags struct {
	user   string
	role   string
	tenant string
	cookie bool
}

func newSessionCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage dashboard sessions",
	}

	f := &sessionFlags{}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint a dashboard session token",
		Long: `Prints a signed session token on stdout. Send it as the agencyops_session
cookie or as "Authorization: Bearer <token>". CLIENT sessions are bound to
one tenant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.load(loadOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			sessions, err := e.sessions()
			if err != nil {
				return err
			}
			token, exp, err := sessions.Issue(f.user, f.role, f.tenant)
			if err != nil {
				return err
			}
			if f.cookie {
				c := sessions.Cookie(token, e.cfg.Dashboard.CookieSecure)
				fmt.Fprintf(cmd.OutOrStdout(), "Set-Cookie: %s\n", c.String())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), token)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&f.user, "user", "", "user name recorded in the token")
	issue.Flags().StringVar(&f.role, "role", "", "ADMIN or CLIENT")
	issue.Flags().StringVar(&f.tenant, "tenant", "", "tenant id (CLIENT sessions)")
	issue.Flags().BoolVar(&f.cookie, "cookie", false, "print a Set-Cookie header line instead of the bare token")
	_ = issue.MarkFlagRequired("user")
	_ = issue.MarkFlagRequired("role")

	cmd.AddCommand(issue)
	return cmd
}
