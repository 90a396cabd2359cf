// Package watch runs the periodic curation service.
package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/curator"
	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/forum"
	"github.com/jkivela/packwatch/internal/ledger"
	"github.com/jkivela/packwatch/internal/logging"
	"github.com/jkivela/packwatch/internal/mqtt"
	"github.com/jkivela/packwatch/internal/notify"
	"github.com/jkivela/packwatch/internal/observability"
	"github.com/jkivela/packwatch/internal/reconciler"
)

// Command creates the watch command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the curation service",
		Long:  "Watch the configured forum groups, turning detection reports into discussion items and curating them by community reaction.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}
}

func run(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.ForService("watch")

	if len(settings.Groups) == 0 {
		return errors.Newf("no forum groups configured").
			Component("watch").
			Category(errors.CategoryConfiguration).
			Build()
	}

	store, err := ledger.OpenStore(&settings.Ledger)
	if err != nil {
		return err
	}
	book := ledger.NewBook(store)
	if err := book.Load(ctx); err != nil {
		return err
	}
	logger.Info("ledger loaded", "type", settings.Ledger.Type, "entries", book.Len())

	client, err := forum.NewClient(&settings.Forum)
	if err != nil {
		return err
	}

	notifier, err := notify.New(client, &settings.Notify)
	if err != nil {
		return err
	}

	var announcer reconciler.Announcer
	if settings.MQTT.Enabled {
		publisher, err := mqtt.NewPublisher(&settings.MQTT)
		if err != nil {
			return err
		}
		defer publisher.Close()
		announcer = publisher
	}

	var metrics *observability.Metrics
	if settings.Observability.Enabled {
		metrics, err = observability.NewMetrics()
		if err != nil {
			return err
		}
		go func() {
			if err := metrics.Serve(settings.Observability.Listen); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint up", "listen", settings.Observability.Listen)
	}

	groups := make([]*curator.Group, 0, len(settings.Groups))
	for i := range settings.Groups {
		groups = append(groups, curator.NewGroup(
			client, book, notifier, announcer, &settings.Groups[i], metrics))
	}

	logger.Info("curation service starting",
		"instance", settings.Main.Name, "groups", len(groups))
	curator.NewRunner(groups).Run(ctx)
	logger.Info("curation service stopped")
	return nil
}
