package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/store"
)

// prefsCommand returns the "prefs" CLI subcommand for inspecting and
// clearing the persisted preference file.
func prefsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Inspect or clear persisted playback preferences",
		Commands: []*cli.Command{
			prefsListCommand(),
			prefsClearCommand(),
		},
	}
}

func prefsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all stored preference keys",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}

			keys := st.Keys()
			if len(keys) == 0 {
				slog.Info("no stored preferences")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func prefsClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete all stored preferences",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}

			if err := st.Clear(); err != nil {
				return fmt.Errorf("clearing preferences: %w", err)
			}
			slog.Info("preferences cleared")
			return nil
		},
	}
}

func openStore(cmd *cli.Command) (*store.Store, error) {
	cfg, err := app.ConfigFrom(cmd)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening preference store: %w", err)
	}
	return st, nil
}
