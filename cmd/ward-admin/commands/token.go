// ABOUTME: "ward-admin token mint" issues signed tokens with the gateway's HMAC secret
// ABOUTME: Tokens carry the account's email and name as claims

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/config"
	"github.com/2389/ward-gateway/internal/store"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(tokenMintCmd())
	return cmd
}

func tokenMintCmd() *cobra.Command {
	var accountID, save string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accountID == "" {
				return fmt.Errorf("--account is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			return withStore(func(cfg *config.Config, s store.Store) error {
				signed := cfg.Auth.Signed
				if signed.HMACSecret == "" {
					return fmt.Errorf("auth.signed.hmac_secret is not configured; tokens come from the external issuer")
				}
				account, err := s.GetAccount(cmd.Context(), accountID)
				if err != nil {
					return fmt.Errorf("account %s: %w", accountID, err)
				}

				v := auth.NewSignedTokenVerifier(auth.NewStaticKeySet([]byte(signed.HMACSecret)), signed.Issuer, signed.Audience)
				token, err := v.Mint(auth.Identity{
					UserID:      account.ID,
					Email:       account.Email,
					DisplayName: account.DisplayName,
				}, ttl)
				if err != nil {
					return fmt.Errorf("minting token: %w", err)
				}

				if save != "" {
					if err := os.MkdirAll(filepath.Dir(save), 0700); err != nil {
						return fmt.Errorf("creating token directory: %w", err)
					}
					if err := os.WriteFile(save, []byte(token), 0600); err != nil {
						return fmt.Errorf("writing token file: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Saved token to %s (expires %s)\n", save, time.Now().Add(ttl).Format("Jan 02, 2006"))
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&save, "save", "", "also write the token to this file")
	return cmd
}
