// ABOUTME: "ward-admin me" asks a running gateway who a token belongs to
// ABOUTME: Calls GET /api/me with the token from --token or WARD_TOKEN

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type meResponse struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
	Account     *struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"account"`
}

func meCmd() *cobra.Command {
	var gatewayURL, token string
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the identity behind a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("WARD_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("no token: pass --token or set WARD_TOKEN")
			}
			if gatewayURL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				gatewayURL = cfg.Server.PublicURL
				if gatewayURL == "" {
					gatewayURL = cfg.Server.LocalURL()
				}
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(gatewayURL, "/")+"/api/me", nil)
			if err != nil {
				return fmt.Errorf("creating request: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("calling gateway: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			var me meResponse
			if err := json.Unmarshal(body, &me); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, color.CyanString("Identity"))
			fmt.Fprintln(out, color.CyanString("--------"))
			fmt.Fprintf(out, "User ID:   %s\n", me.UserID)
			fmt.Fprintf(out, "Email:     %s\n", me.Email)
			fmt.Fprintf(out, "Name:      %s\n", me.DisplayName)
			fmt.Fprintf(out, "Verified:  %s\n", me.Provider)
			if me.Account != nil {
				fmt.Fprintf(out, "Account:   created %s\n", me.Account.CreatedAt.Format("Jan 02, 2006"))
			} else {
				fmt.Fprintln(out, color.YellowString("Account:   none (token subject has no local account)"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "url", "", "gateway base URL (default: server.public_url, else the http_addr listener)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $WARD_TOKEN)")
	return cmd
}
