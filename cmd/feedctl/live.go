package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
)

var (
	flagCompact bool
	flagSummary bool
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Assemble the live feed once and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Pipeline.Live(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if flagSummary {
			var resp assembler.Response
			if err := json.Unmarshal(snap.Body, &resp); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			fmt.Fprintf(out, "origin=%s degraded=%v news=%d markets=%d\n",
				snap.Origin, snap.Degraded, resp.Meta.NewsCount, resp.Meta.MarketsCount)
			classes := make([]string, 0, len(resp.Meta.Classes))
			for c := range resp.Meta.Classes {
				classes = append(classes, string(c))
			}
			sort.Strings(classes)
			for _, c := range classes {
				m := resp.Meta.Classes[feed.Class(c)]
				fmt.Fprintf(out, "  %-9s %-8s count=%-3d %s\n", c, m.Served, m.Count, m.Reason)
			}
			return nil
		}

		if flagCompact {
			_, err = fmt.Fprintln(out, string(snap.Body))
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, snap.Body, "", "  "); err != nil {
			return fmt.Errorf("formatting response: %w", err)
		}
		_, err = fmt.Fprintln(out, buf.String())
		return err
	},
}

func init() {
	liveCmd.Flags().BoolVar(&flagCompact, "compact", false, "print the response on one line")
	liveCmd.Flags().BoolVar(&flagSummary, "summary", false, "print counts and per-class status instead of the body")
}
