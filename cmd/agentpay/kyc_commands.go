package main

import (
	"fmt"
	"sort"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/directory"
	"github.com/urfave/cli/v2"
)

func kycFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "KYC store used with KYC_MODE=file",
		EnvVars: []string{"KYC_FILE"},
		Value:   "kyc.json",
	}
}

func kycCommands() *cli.Command {
	return &cli.Command{
		Name:  "kyc",
		Usage: "Manage the local KYC store",
		Subcommands: []*cli.Command{
			kycSetCommand(),
			kycListCommand(),
		},
	}
}

func kycSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Record an account's KYC status",
		ArgsUsage: "ACCOUNT_ID",
		Flags: []cli.Flag{
			kycFileFlag(),
			&cli.BoolFlag{
				Name:  "verified",
				Value: true,
				Usage: "Whether the account passed KYC (--verified=false to revoke)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Account holder name",
			},
			&cli.StringFlag{
				Name:  "id-number",
				Usage: "Identity document number",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account id is required")
			}
			accountID := c.Args().First()
			if !directory.IsAccountID(accountID) {
				return fmt.Errorf("invalid account id %q: must look like 0.0.12345", accountID)
			}

			store, err := compliance.OpenFileKYC(c.String("file"))
			if err != nil {
				return err
			}

			if err := store.Set(accountID, compliance.KYCRecord{
				KYCVerified: c.Bool("verified"),
				Name:        c.String("name"),
				IDNumber:    c.String("id-number"),
			}); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ %s kyc_verified=%t\n", accountID, c.Bool("verified"))
			return nil
		},
	}
}

func kycListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List KYC records",
		Flags: []cli.Flag{
			kycFileFlag(),
		},
		Action: func(c *cli.Context) error {
			store, err := compliance.OpenFileKYC(c.String("file"))
			if err != nil {
				return err
			}
			records := store.List()

			if c.Bool("json") {
				return printJSON(c, records)
			}

			if len(records) == 0 {
				fmt.Fprintln(c.App.Writer, "No KYC records found")
				return nil
			}

			ids := make([]string, 0, len(records))
			for id := range records {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			fmt.Fprintf(c.App.Writer, "%-15s %-9s %s\n", "ACCOUNT", "VERIFIED", "NAME")
			for _, id := range ids {
				r := records[id]
				fmt.Fprintf(c.App.Writer, "%-15s %-9t %s\n", id, r.KYCVerified, r.Name)
			}
			return nil
		},
	}
}
