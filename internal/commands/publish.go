package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smsledger/smsledger/internal/amqp"
	"github.com/smsledger/smsledger/internal/importer"
	"github.com/smsledger/smsledger/internal/model"
)

func newPublishCommand(opts *rootOptions) *cobra.Command {
	var sender string
	var file string

	cmd := &cobra.Command{
		Use:   "publish [text]",
		Short: "Queue a message, or every message of an export file, on the AMQP queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []model.Message
			switch {
			case file != "" && len(args) > 0:
				return errors.New("give either message text or --file, not both")
			case file != "":
				var err error
				if msgs, err = importer.ParseFile(importer.DefaultRegistry(), file); err != nil {
					return err
				}
			case len(args) > 0:
				msgs = []model.Message{{Sender: sender, Body: strings.Join(args, " ")}}
			default:
				return errors.New("nothing to publish")
			}

			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if a.cfg.AMQP.URL == "" {
				return errors.New("amqp.url is not configured (set it in the config file or SMSLEDGER_AMQP_URL)")
			}

			client, err := amqp.NewClient(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, amqp.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()

			for i, msg := range msgs {
				if err := client.Publish(cmd.Context(), msg); err != nil {
					return fmt.Errorf("message %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(a.out, "Published %d message(s) to %s\n", len(msgs), a.cfg.AMQP.Queue)
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "sender identifier, e.g. SBI")
	cmd.Flags().StringVar(&file, "file", "", "SMS export file (.csv or .txt)")

	return cmd
}
