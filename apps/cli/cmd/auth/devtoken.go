package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
)

// Command groups auth-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Auth utilities (dev tokens)",
	}

	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var (
		secret    string
		userID    string
		tenantID  string
		role      string
		email     string
		stores    []string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a signed HS256 bearer token for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := platformauth.NewTokenIssuer(secret, expiresIn)
			if err != nil {
				return err
			}

			claims := platformauth.Claims{
				SessionID: uuid.New(),
				Role:      role,
				Email:     email,
			}
			claims.UserID, err = uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid user-id: %w", err)
			}
			if tenantID != "" {
				parsed, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid tenant-id: %w", err)
				}
				claims.TenantID = &parsed
			}
			for _, raw := range stores {
				store, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid store id %q: %w", raw, err)
				}
				claims.AssignedStores = append(claims.AssignedStores, store)
			}

			token, err := issuer.Mint(claims, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "shared HMAC secret the API verifies with")
	cmd.Flags().StringVar(&userID, "user-id", "", "user id (uuid)")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id (uuid); omit for a legacy master-database token")
	cmd.Flags().StringVar(&role, "role", "salesperson", "role claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringSliceVar(&stores, "stores", nil, "assigned store ids (comma-separated uuids)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}
