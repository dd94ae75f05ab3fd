package cli

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/cimillas/ticket-ledger/internal/authsig"
)

func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer key",
		Long: `Generate a secp256k1 key. Grant the printed address the sign-transaction
capability to let it authorize sales and refunds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
			fmt.Fprintf(out, "key:     %s\n", hexutil.Encode(crypto.FromECDSA(key)))
			return nil
		},
	}
}

type signOptions struct {
	key              string
	eventID          uint64
	percentageAbsMax uint64
}

// NewSignCommand groups the commands that produce off-ledger authorizations.
func NewSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign sale and refund authorizations",
	}
	cmd.AddCommand(newSignSaleCommand())
	cmd.AddCommand(newSignRefundCommand())
	return cmd
}

func (o *signOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.key, "key", "", "hex private key of an authorized signer (required)")
	cmd.Flags().Uint64Var(&o.eventID, "event", 0, "event id")
	cmd.Flags().Uint64Var(&o.percentageAbsMax, "percentage-abs-max", 100, "denominator of percentages")
	_ = cmd.MarkFlagRequired("key")
}

func newSignSaleCommand() *cobra.Command {
	var (
		opts  signOptions
		buyer string
		share uint64
		seat  []uint
		price string
	)

	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Authorize a primary sale",
		Example: `  ledgerd sign sale --key 0x... --buyer 0x...a11ce --event 0 \
    --resell-profit-share 10 --seat 1,2,3 --price 500000000000000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := parseKey(opts.key)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(buyer) {
				return fmt.Errorf("invalid buyer %q", buyer)
			}
			if len(seat) != 3 {
				return errors.New("seat needs exactly three numbers")
			}
			amount, err := uint256.FromDecimal(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}

			terms := authsig.SaleTerms{
				Buyer:             common.HexToAddress(buyer),
				EventID:           opts.eventID,
				ResellProfitShare: share,
				PercentageAbsMax:  opts.percentageAbsMax,
				Seat:              [3]uint64{uint64(seat[0]), uint64(seat[1]), uint64(seat[2])},
				InitialPrice:      amount,
			}
			sig, err := authsig.Sign(terms.Preimage(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig.Hex())
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer address (required)")
	cmd.Flags().Uint64Var(&share, "resell-profit-share", 0, "organizer share of resale profit")
	cmd.Flags().UintSliceVar(&seat, "seat", nil, "seat coordinates (three numbers)")
	cmd.Flags().StringVar(&price, "price", "0", "initial price in wei")
	_ = cmd.MarkFlagRequired("buyer")
	return cmd
}

func newSignRefundCommand() *cobra.Command {
	var (
		opts       signOptions
		caller     string
		ticketID   uint64
		percentage uint64
	)

	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Authorize a refund",
		Example: `  ledgerd sign refund --key 0x... --caller 0x...a11ce --event 0 --ticket 0 \
    --percentage 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := parseKey(opts.key)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(caller) {
				return fmt.Errorf("invalid caller %q", caller)
			}

			terms := authsig.RefundTerms{
				Caller:           common.HexToAddress(caller),
				EventID:          opts.eventID,
				TicketID:         ticketID,
				RefundPercentage: percentage,
				PercentageAbsMax: opts.percentageAbsMax,
			}
			sig, err := authsig.Sign(terms.Preimage(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig.Hex())
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&caller, "caller", "", "ticket owner requesting the refund (required)")
	cmd.Flags().Uint64Var(&ticketID, "ticket", 0, "ticket id")
	cmd.Flags().Uint64Var(&percentage, "percentage", 0, "share of the price refunded")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return key, nil
}
