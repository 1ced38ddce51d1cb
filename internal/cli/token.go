package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/awaybot/awaybot/internal/auth"
)

var (
	tokenOwner  string
	tokenExpiry time.Duration
)

func init() {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an owner token for the management API",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	cmd.Flags().StringVar(&tokenOwner, "owner", "owner", "Owner name embedded in the token")
	cmd.Flags().DurationVar(&tokenExpiry, "expiry", 0, "Token lifetime (default: JWT_EXPIRY)")

	RootCmd.AddCommand(cmd)
}

type tokenOutput struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	if len(cfg.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	expiry := cfg.JWT.Expiry
	if tokenExpiry > 0 {
		expiry = tokenExpiry
	}

	token, expiresAt, err := auth.NewJWTManager(cfg.JWT.Secret, expiry).Issue(tokenOwner)
	if err != nil {
		return err
	}

	b, _ := json.MarshalIndent(tokenOutput{Token: token, Owner: tokenOwner, ExpiresAt: expiresAt.UTC()}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
