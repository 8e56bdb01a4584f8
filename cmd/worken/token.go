package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	httpserver "github.com/Noctocode/worken-ai/internal/http"
	"github.com/Noctocode/worken-ai/internal/store"
)

var (
	tokenUser  string
	tokenEmail string
	tokenName  string
	tokenPaid  bool
	tokenTTL   time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (a new id is generated when empty)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "user email (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().BoolVar(&tokenPaid, "paid", false, "mark the user as paid")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create a user and print an access token",
	Long: `Upsert a user and print a signed access token for it.

Intended for development and operations when the web login is not
available. The token is accepted as a Bearer header or an access_token
cookie.

Examples:
  worken token --email ada@example.com --paid
  curl -H "Authorization: Bearer $(worken token --email ada@example.com)" \
    localhost:8080/api/v1/projects`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		id := tokenUser
		if id == "" {
			id = uuid.NewString()
		}
		user := &store.User{ID: id, Email: tokenEmail, Name: tokenName, IsPaid: tokenPaid}
		if err := a.store.Users().Upsert(ctx, user); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}

		token, err := httpserver.IssueToken(a.cfg.JWT.Secret.Value(), id, tokenEmail, tokenPaid, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
