package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pricewatch/config"
	"pricewatch/logger"
	"pricewatch/models"
	"pricewatch/services"
)

type fetchOptions struct {
	mode     string
	selector string
	title    bool
}

type fetchOutput struct {
	URL       string           `json:"url"`
	Mode      string           `json:"mode"`
	Price     *float64         `json:"price"`
	ErrorKind models.ErrorKind `json:"errorKind"`
	Message   string           `json:"message,omitempty"`
	Title     string           `json:"title,omitempty"`
}

func fetchCommand() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Extract the price of a single page and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "scraper mode: auto, simple or puppeteer (default from domain settings)")
	cmd.Flags().StringVar(&opts.selector, "selector", "", "CSS selector holding the price")
	cmd.Flags().BoolVar(&opts.title, "title", false, "also fetch the product title")
	return cmd
}

func runFetch(ctx context.Context, c *config.Config, url string, opts fetchOptions, out io.Writer) error {
	log := logger.NewTo(c.LogLevel, os.Stderr)
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, c, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := models.ScraperMode(opts.mode)
	res, err := a.tracker.Probe(ctx, services.ProbeInput{URL: url, Mode: mode, Selector: opts.selector})
	if err != nil {
		return err
	}

	result := fetchOutput{
		URL:       url,
		Mode:      opts.mode,
		Price:     res.Price,
		ErrorKind: res.ErrorKind,
		Message:   res.Message,
	}
	if result.Mode == "" {
		result.Mode = "default"
	}
	if opts.title {
		result.Title = a.scraper.FetchTitle(ctx, url)
	}
	return writeIndentedJSON(out, result)
}

func writeIndentedJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
