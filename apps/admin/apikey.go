package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// apiKeysCommand lists the stored keys. Secrets are never printed.
func (cli *commandLine) apiKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apikeys",
		Short: "List third-party API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			keys, err := cli.keyRepo.QueryAPIKeys(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				uses, err := cli.keyRepo.CountUsage(ctx, key.ID)
				if err != nil {
					return err
				}
				lastUsed := "never"
				if key.LastUsed != nil {
					lastUsed = humanize.Time(*key.LastUsed)
				}
				rows = append(rows, []string{
					key.ID,
					key.Service,
					key.Description,
					activeLabel(key.IsActive),
					humanize.Comma(int64(uses)),
					humanize.Comma(int64(key.UsageLimit)),
					lastUsed,
				})
			}
			fmt.Fprintln(cli.out, renderTable(
				[]string{"ID", "Service", "Description", "Active", "Uses", "Limit", "Last used"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
