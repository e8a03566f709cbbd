package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brojonat/agentpay/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a message to the payment agent",
		ArgsUsage: "MESSAGE...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("message is required")
			}
			message := strings.Join(c.Args().Slice(), " ")

			resp, err := newClient(c).Chat(c.Context, message)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c, resp)
			}
			fmt.Fprintln(c.App.Writer, resp.Response)
			return nil
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Aliases:   []string{"send"},
		Usage:     "Send a structured transfer without going through chat",
		ArgsUsage: "RECIPIENT AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "currency",
				Aliases: []string{"c"},
				Value:   "USD",
				Usage:   "Currency of AMOUNT",
			},
			&cli.StringFlag{
				Name:  "purpose",
				Usage: "Purpose of the transfer (family_support, education, medical, business, gift, other)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("recipient and amount are required")
			}

			result, err := newClient(c).Transfer(c.Context, client.TransferRequest{
				Recipient: c.Args().Get(0),
				Amount:    c.Args().Get(1),
				Currency:  c.String("currency"),
				Purpose:   c.String("purpose"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c, result)
			}

			if !result.Success {
				return fmt.Errorf("transfer %s (%s): %s", result.State, result.Reason, result.Error)
			}

			fmt.Fprintf(c.App.Writer, "✓ Transfer completed\n")
			fmt.Fprintf(c.App.Writer, "  Transfer ID:    %s\n", result.TransferID)
			fmt.Fprintf(c.App.Writer, "  Transaction ID: %s\n", result.TransactionID)
			if result.ExplorerURL != "" {
				fmt.Fprintf(c.App.Writer, "  Explorer:       %s\n", result.ExplorerURL)
			}
			return nil
		},
	}
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "Show token balances for the sender and default recipient",
		ArgsUsage: "[ACCOUNT_ID]",
		Action: func(c *cli.Context) error {
			b, err := newClient(c).Balances(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c, b)
			}

			fmt.Fprintf(c.App.Writer, "Token %s (%s) on %s\n", b.TokenSymbol, b.TokenID, b.Network)
			for _, row := range b.Balances {
				fmt.Fprintf(c.App.Writer, "  %-10s %-15s %s\n", row.Role, row.AccountID, row.Balance)
			}
			return nil
		},
	}
}

func recipientsCommand() *cli.Command {
	return &cli.Command{
		Name:  "recipients",
		Usage: "List the recipient directory",
		Action: func(c *cli.Context) error {
			recipients, err := newClient(c).Recipients(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(c, recipients)
			}

			if len(recipients) == 0 {
				fmt.Fprintln(c.App.Writer, "No recipients found")
				return nil
			}

			fmt.Fprintf(c.App.Writer, "%-15s %-15s %-15s %-8s %s\n", "NAME", "ACCOUNT", "LOCATION", "CURRENCY", "KYC")
			for _, r := range recipients {
				kyc := "no"
				if r.KYCVerified {
					kyc = "yes"
				}
				fmt.Fprintf(c.App.Writer, "%-15s %-15s %-15s %-8s %s\n", r.Name, r.AccountID, r.Location, r.Currency, kyc)
			}
			return nil
		},
	}
}

func transfersCommands() *cli.Command {
	return &cli.Command{
		Name:  "transfers",
		Usage: "Async transfer and transfer stream commands",
		Subcommands: []*cli.Command{
			asyncTransferCommand(),
			transferStatusCommand(),
			awaitTransferCommand(),
		},
	}
}

func asyncTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "async",
		Usage:     "Start a transfer workflow from a chat message",
		ArgsUsage: "MESSAGE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Poll until the workflow finishes",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: 2 * time.Second,
				Usage: "How often to poll with --wait",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("message is required")
			}

			cl := newClient(c)
			workflowID, err := cl.StartAsyncTransfer(c.Context, strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return printJSON(c, map[string]string{"workflow_id": workflowID})
				}
				fmt.Fprintf(c.App.Writer, "Started transfer workflow %s\n", workflowID)
				return nil
			}

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Waiting for workflow %s...\n", workflowID)
			}
			status, err := pollStatus(c.Context, cl, workflowID, c.Duration("poll-interval"))
			if err != nil {
				return err
			}
			return printStatus(c, status)
		},
	}
}

func transferStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a transfer workflow",
		ArgsUsage: "WORKFLOW_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("workflow id is required")
			}

			status, err := newClient(c).GetTransferStatus(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printStatus(c, status)
		},
	}
}

func pollStatus(ctx context.Context, cl *client.Client, workflowID string, interval time.Duration) (*client.TransferStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := cl.GetTransferStatus(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if status.Status != "RUNNING" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printStatus(c *cli.Context, status *client.TransferStatus) error {
	if c.Bool("json") {
		return printJSON(c, status)
	}

	fmt.Fprintf(c.App.Writer, "Workflow: %s\n", status.WorkflowID)
	fmt.Fprintf(c.App.Writer, "  Status: %s\n", status.Status)
	if status.Error != "" {
		fmt.Fprintf(c.App.Writer, "  Error:  %s\n", status.Error)
	}
	if status.Result != nil {
		fmt.Fprintf(c.App.Writer, "  Result: %s\n", status.Result.Status)
		if status.Result.TransactionID != "" {
			fmt.Fprintf(c.App.Writer, "  Transaction ID: %s\n", status.Result.TransactionID)
		}
		fmt.Fprintf(c.App.Writer, "\n%s\n", status.Result.Message)
	}
	return nil
}

func awaitTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a completed transfer matching criteria arrives",
		ArgsUsage: "[RECIPIENT_ACCOUNT_ID]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "transfer-id",
				Usage: "Filter by exact transfer id",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter over the transfer event; every filter must be truthy (repeatable)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for a transfer",
			},
		},
		Action: func(c *cli.Context) error {
			account := c.Args().First()
			transferID := c.String("transfer-id")
			jqFilters := c.StringSlice("jq")

			compiled, err := compileJQFilters(jqFilters)
			if err != nil {
				return err
			}
			matcher := transferMatcher(transferID, compiled)

			if !c.Bool("json") {
				target := account
				if target == "" {
					target = "any account"
				}
				fmt.Fprintf(os.Stderr, "Waiting for a transfer to %s...\n", target)
				if transferID != "" {
					fmt.Fprintf(os.Stderr, "  Transfer ID: %s\n", transferID)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			event, err := newClient(c).AwaitTransfer(ctx, account, matcher)
			if err != nil {
				return fmt.Errorf("failed to await transfer: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c, event)
			}

			fmt.Fprintf(c.App.Writer, "✓ Transfer received\n")
			fmt.Fprintf(c.App.Writer, "  Transfer ID:    %s\n", event.TransferID)
			fmt.Fprintf(c.App.Writer, "  Transaction ID: %s\n", event.TransactionID)
			fmt.Fprintf(c.App.Writer, "  Recipient:      %s\n", event.Recipient)
			fmt.Fprintf(c.App.Writer, "  Amount:         %s %s (%s USD)\n", event.Amount, event.SourceCurrency, event.AmountUSD)
			return nil
		},
	}
}

func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// transferMatcher matches events by transfer id and jq filters. Filters run
// against the event's JSON form, so they see the wire field names.
func transferMatcher(transferID string, filters []*gojq.Code) func(*client.TransferEvent) bool {
	return func(event *client.TransferEvent) bool {
		if transferID != "" && event.TransferID != transferID {
			return false
		}
		if len(filters) == 0 {
			return true
		}

		data, err := json.Marshal(event)
		if err != nil {
			return false
		}
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return false
		}

		for _, code := range filters {
			iter := code.Run(doc)
			v, ok := iter.Next()
			if !ok {
				return false
			}
			if _, isErr := v.(error); isErr {
				return false
			}
			if !isTruthy(v) {
				return false
			}
		}
		return true
	}
}

// isTruthy follows jq: only null and false are falsy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
