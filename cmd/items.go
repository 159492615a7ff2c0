package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pricewatch/config"
	"pricewatch/logger"
	"pricewatch/models"
)

func itemsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and refresh tracked items",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked items with their best prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsList(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh [id]",
		Short: "Fetch fresh prices for one item, or for all items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runItemsRefresh(cmd.Context(), cfg, id, cmd.OutOrStdout())
		},
	})
	return cmd
}

func runItemsList(ctx context.Context, c *config.Config, out io.Writer) error {
	log := logger.NewTo(c.LogLevel, os.Stderr)
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, c, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.tracker.ListItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No items tracked")
		return err
	}
	renderItems(out, items)
	return nil
}

func runItemsRefresh(ctx context.Context, c *config.Config, id string, out io.Writer) error {
	log := logger.NewTo(c.LogLevel, os.Stderr)
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, c, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if id != "" {
		item, summary, err := a.tracker.RefreshItem(ctx, id)
		if err != nil {
			return fmt.Errorf("refresh item %s: %w", id, err)
		}
		renderItems(out, []models.Item{item})
		renderSummary(out, summary)
		return nil
	}

	summary, err := a.tracker.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh all: %w", err)
	}
	renderSummary(out, summary)
	return nil
}

// renderItems prints items as a table in list order
func renderItems(out io.Writer, items []models.Item) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Price", "Min", "Max", "Best Site", "Sites", "Updated"})

	for _, it := range items {
		best := "-"
		if it.BestURL != nil {
			best = models.HostDomain(*it.BestURL)
		}
		t.AppendRow(table.Row{
			it.Position,
			it.Name,
			formatPrice(it.CurrentPrice),
			formatPrice(it.MinPrice),
			formatPrice(it.MaxPrice),
			best,
			len(it.Sites),
			formatTime(it.LastUpdated),
		})
	}
	t.Render()
}

func renderSummary(out io.Writer, s models.RefreshSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Items", "Sites", "Updated", "Rejected", "Failed", "Duration"})
	t.AppendRow(table.Row{s.Items, s.Sites, s.Updated, s.Rejected, s.Failed, s.Duration})
	t.Render()
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return decimal.NewFromFloat(*p).StringFixed(2)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
