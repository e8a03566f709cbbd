package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/brojonat/agentpay/service/ledger"
	"github.com/urfave/cli/v2"
)

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Usage:   "Ledger network (testnet, previewnet, mainnet)",
			EnvVars: []string{"LEDGER_NETWORK"},
			Value:   "testnet",
		},
		&cli.StringFlag{
			Name:    "operator-id",
			Usage:   "Operator account id; also the token treasury",
			EnvVars: []string{"SENDER_ACCOUNT_ID"},
		},
		&cli.StringFlag{
			Name:    "operator-key",
			Usage:   "Operator private key",
			EnvVars: []string{"SENDER_PRIVATE_KEY"},
		},
		&cli.BoolFlag{
			Name:    "simulate",
			Usage:   "Run against an in-memory ledger",
			EnvVars: []string{"SIMULATE_TRANSFERS"},
		},
	}
}

// newLedger connects with the operator credentials from the flags.
func newLedger(c *cli.Context, decimals int32) (ledger.Client, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	if c.Bool("simulate") {
		return ledger.NewSimulatedClient(decimals, logger), func() {}, nil
	}

	operatorID := c.String("operator-id")
	operatorKey := c.String("operator-key")
	if operatorID == "" || operatorKey == "" {
		return nil, nil, fmt.Errorf("operator-id and operator-key are required (set SENDER_ACCOUNT_ID and SENDER_PRIVATE_KEY)")
	}

	h, err := ledger.NewHederaClient(ledger.HederaConfig{
		Network:     c.String("network"),
		OperatorID:  operatorID,
		OperatorKey: operatorKey,
		Decimals:    decimals,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return h, func() { h.Close() }, nil
}

func tokenCommands() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Payment token administration on the ledger",
		Subcommands: []*cli.Command{
			tokenCreateCommand(),
			tokenAssociateCommand(),
		},
	}
}

func tokenCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create the payment token with the operator as treasury",
		Flags: append(ledgerFlags(),
			&cli.StringFlag{
				Name:  "name",
				Value: "Test PYUSD",
				Usage: "Token name",
			},
			&cli.StringFlag{
				Name:  "symbol",
				Value: "TPYUSD",
				Usage: "Token symbol",
			},
			&cli.UintFlag{
				Name:  "decimals",
				Value: 6,
				Usage: "Token decimals",
			},
			&cli.Uint64Flag{
				Name:  "supply",
				Value: 1_000_000_000_000,
				Usage: "Initial supply in minor units, credited to the treasury",
			},
			&cli.BoolFlag{
				Name:  "kyc-key",
				Usage: "Give the token a KYC key (enables KYC_MODE=token)",
			},
		),
		Action: func(c *cli.Context) error {
			l, closeFn, err := newLedger(c, int32(c.Uint("decimals")))
			if err != nil {
				return err
			}
			defer closeFn()

			tokenID, err := l.CreateToken(c.Context, ledger.CreateTokenRequest{
				Name:          c.String("name"),
				Symbol:        c.String("symbol"),
				Decimals:      c.Uint("decimals"),
				InitialSupply: c.Uint64("supply"),
				Treasury:      c.String("operator-id"),
				TreasuryKey:   c.String("operator-key"),
				WithKYCKey:    c.Bool("kyc-key"),
			})
			if err != nil {
				return fmt.Errorf("failed to create token: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c, map[string]string{"token_id": tokenID})
			}
			fmt.Fprintf(c.App.Writer, "✓ Token created: %s\n", tokenID)
			fmt.Fprintf(c.App.Writer, "  Set TOKEN_ID=%s to use it\n", tokenID)
			return nil
		},
	}
}

func tokenAssociateCommand() *cli.Command {
	return &cli.Command{
		Name:      "associate",
		Usage:     "Associate an account with the payment token so it can receive transfers",
		ArgsUsage: "ACCOUNT_ID ACCOUNT_KEY",
		Flags: append(ledgerFlags(),
			&cli.StringFlag{
				Name:     "token-id",
				Usage:    "Token to associate",
				EnvVars:  []string{"TOKEN_ID"},
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("account id and account key are required")
			}
			accountID := c.Args().Get(0)

			l, closeFn, err := newLedger(c, 0)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := l.AssociateToken(c.Context, accountID, c.Args().Get(1), c.String("token-id")); err != nil {
				return fmt.Errorf("failed to associate token: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Account %s associated with token %s\n", accountID, c.String("token-id"))
			return nil
		},
	}
}
