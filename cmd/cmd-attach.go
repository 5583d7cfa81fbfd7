package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/urfave/cli/v3"

	"github.com/merov/graft/internal/agent"
	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/page"
	"github.com/merov/graft/internal/store"
)

// attachCommand returns the "attach" CLI subcommand: open the player page,
// take over its media element and run until interrupted.
func attachCommand() *cli.Command {
	var urlArg string

	return &cli.Command{
		Name:  "attach",
		Usage: "Attach to a player page and take over its player",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:        "url",
				Destination: &urlArg,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if urlArg == "" {
				return fmt.Errorf("page URL argument is required")
			}
			if _, err := url.Parse(urlArg); err != nil {
				return fmt.Errorf("invalid page URL %q: %w", urlArg, err)
			}

			cfg, err := app.ConfigFrom(cmd)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening preference store: %w", err)
			}

			sess, err := page.Open(ctx, cfg.Browser, urlArg)
			if err != nil {
				return fmt.Errorf("attaching to page: %w", err)
			}
			defer sess.Close()

			if err := agent.New(cfg, sess, st).Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("agent stopped: %w", err)
			}
			return nil
		},
	}
}
