package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smsledger/smsledger/internal/activity"
	"github.com/smsledger/smsledger/internal/amqp"
	"github.com/smsledger/smsledger/internal/importer"
	"github.com/smsledger/smsledger/internal/ledger"
	"github.com/smsledger/smsledger/internal/pipeline"
)

func newIngestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Apply SMS export files to the balance",
		Long: "Apply SMS export files (.csv or .txt) to the balance.\n" +
			"With no files, every export in <data_dir>/import/ is read and then moved to import/processed/.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), a, args)
		},
	}
}

func runIngest(ctx context.Context, a *app, paths []string) error {
	l, closeLedger, err := a.openLedger(ctx, false)
	if err != nil {
		return err
	}
	defer closeLedger()

	p := a.pipeline(l)
	src := importer.NewFileSource(a.cfg.DataDir,
		importer.WithPaths(paths...),
		importer.WithLogger(a.logger))

	if err := p.Serve(ctx, src); err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}

	s := p.Stats()
	fmt.Fprintf(a.out, "Processed %d messages: %d applied, %d dropped (balance not set), %d unmatched, %d filtered\n",
		s.Received, s.Applied, s.Dropped, s.Unmatched, s.Filtered)
	fmt.Fprintf(a.out, "Balance: %s\n", a.format(l.Current()))
	return nil
}

func newConsumeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Apply messages from the AMQP queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsume(ctx, a)
		},
	}
}

func runConsume(ctx context.Context, a *app) error {
	if a.cfg.AMQP.URL == "" {
		return errors.New("amqp.url is not configured (set it in the config file or SMSLEDGER_AMQP_URL)")
	}

	client, err := amqp.NewClient(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue,
		amqp.WithPrefetch(a.cfg.AMQP.Prefetch),
		amqp.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer client.Close()

	l, closeLedger, err := a.openLedger(ctx, true)
	if err != nil {
		return err
	}
	defer closeLedger()

	fmt.Fprintf(a.out, "Balance: %s\n", a.format(l.Current()))

	p := a.pipeline(l)
	err = p.Serve(ctx, client)
	s := p.Stats()
	a.logger.Info("consumer stopped",
		zap.Uint64("received", s.Received),
		zap.Uint64("applied", s.Applied))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) pipeline(l *ledger.Ledger) *pipeline.Pipeline {
	return pipeline.New(a.extractor(), l,
		pipeline.WithQueueSize(a.cfg.Pipeline.QueueSize),
		pipeline.WithPrefilter(a.cfg.Pipeline.Prefilter),
		pipeline.WithRecorder(activity.NewLog(a.cfg.DataDir)),
		pipeline.WithLogger(a.logger))
}
