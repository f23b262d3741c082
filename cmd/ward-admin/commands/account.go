// ABOUTME: "ward-admin account" commands: create, list and link provider identities
// ABOUTME: Linked identities are what the introspection strategy resolves to

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/store"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(accountCreateCmd(), accountListCmd(), accountLinkCmd())
	return cmd
}

func accountCreateCmd() *cobra.Command {
	var id, email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			return withStore(func(_ *config.Config, s store.Store) error {
				account := &store.Account{ID: id, Email: email, DisplayName: strings.TrimSpace(name)}
				if err := s.CreateAccount(cmd.Context(), account); err != nil {
					return fmt.Errorf("creating account: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, color.GreenString("✓ "))
				fmt.Fprintf(out, "Created account %s (%s)\n", account.ID, account.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id (default: random UUID)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func accountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(_ *config.Config, s store.Store) error {
				accounts, err := s.ListAccounts(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing accounts: %w", err)
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tEMAIL\tNAME\tCREATED")
				for _, a := range accounts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Email, a.DisplayName, a.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}
}

func accountLinkCmd() *cobra.Command {
	var accountID, provider, subject string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link an identity provider subject to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accountID == "" || subject == "" {
				return fmt.Errorf("--account and --subject are required")
			}
			return withStore(func(cfg *config.Config, s store.Store) error {
				if provider == "" {
					provider = cfg.Auth.Introspection.Provider
				}
				if _, err := s.GetAccount(cmd.Context(), accountID); err != nil {
					return fmt.Errorf("account %s: %w", accountID, err)
				}
				link := &store.ProviderLink{Provider: provider, ExternalID: subject, AccountID: accountID}
				if err := s.LinkProvider(cmd.Context(), link); err != nil {
					return fmt.Errorf("linking provider: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, color.GreenString("✓ "))
				fmt.Fprintf(out, "Linked %s/%s to %s\n", provider, subject, accountID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&provider, "provider", "", "identity provider (default: auth.introspection.provider)")
	cmd.Flags().StringVar(&subject, "subject", "", "the provider's subject id")
	return cmd
}
