package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/urfave/cli/v3"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/page"
	"github.com/merov/graft/internal/scan"
)

// scanCommand returns the "scan" CLI subcommand: a one-shot extractor run
// that reports what the heuristics find on a page without taking it over.
func scanCommand() *cli.Command {
	var urlArg string

	return &cli.Command{
		Name:  "scan",
		Usage: "Scan a player page and list discovered media and options",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:        "url",
				Destination: &urlArg,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := app.ConfigFrom(cmd)
			if err != nil {
				return err
			}

			sess, err := page.Open(ctx, cfg.Browser, urlArg)
			if err != nil {
				return fmt.Errorf("attaching to page: %w", err)
			}
			defer sess.Close()

			snapshot, err := sess.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("snapshotting page: %w", err)
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
			if err != nil {
				return fmt.Errorf("parsing snapshot: %w", err)
			}

			res, err := scan.All(ctx, doc)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if res.Media == nil {
				slog.Info("no media element found")
			} else {
				slog.Info("media element found",
					"tag", res.Media.Tag, "node", res.Media.NodeID, "src", res.Media.Source)
			}
			logOptions("season", res.Series.Seasons)
			logOptions("episode", res.Series.Episodes)
			logOptions("voiceover", res.Voiceovers)
			logOptions("quality", res.Qualities)
			return nil
		},
	}
}

func logOptions(kind string, opts []scan.Option) {
	if len(opts) == 0 {
		slog.Info("no options found", "kind", kind)
		return
	}
	slog.Info("options found", "kind", kind, "count", len(opts))
	for _, o := range opts {
		slog.Info("option", "kind", kind, "label", o.Label, "active", o.Active)
	}
}
