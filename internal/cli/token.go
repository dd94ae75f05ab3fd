package cli

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/cimillas/ticket-ledger/internal/config"
	transporthttp "github.com/cimillas/ticket-ledger/internal/transport/http"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue a gateway bearer token for an address",
		Long: `Issue an HS256 token signed with LEDGER_JWT_SECRET. Its subject is the
address the gateway treats as the caller.

Example:
  ledgerd token 0x00000000000000000000000000000000000a11ce --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cfg.JWTSecret == "" {
				return config.ErrMissingSecret
			}
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			tok, err := transporthttp.IssueToken(cfg.JWTSecret, common.HexToAddress(args[0]), cfg.TokenTTL, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
