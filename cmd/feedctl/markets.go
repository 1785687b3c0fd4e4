package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/market"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source/polymarket"
)

var flagLimit int

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List relevant prediction markets by volume",
	Long:  "markets fetches the prediction-market events that pass the keyword gate and prints one display line per market, largest volume first. No classifier is involved.",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter := polymarket.New(cfg.Sources.Polymarket, cfg.Sources.Keywords)
		quotes, counters, err := adapter.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		if flagLimit > 0 && len(quotes) > flagLimit {
			quotes = quotes[:flagLimit]
		}
		out := cmd.OutOrStdout()
		for _, q := range quotes {
			printMarket(out, q)
		}
		fmt.Fprintf(out, "\n%d events, %d relevant, %d markets\n", counters["events"], counters["relevant"], counters["markets"])
		return nil
	},
}

func printMarket(w io.Writer, q feed.MarketQuote) {
	fmt.Fprintf(w, "%s%s\n", market.DisplayQuestion(q.Question, q.Outcomes), market.ResolutionSuffix(q.EndDate))
	line := "  " + q.VolumeFormatted
	if top, ok := market.TopOutcome(q.Outcomes); ok {
		line += fmt.Sprintf("  %s %.1f%%", top.Label, top.Probability)
	}
	fmt.Fprintf(w, "%s  %s\n", line, q.URL)
}

func init() {
	marketsCmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum markets to print (0 for all)")
}
