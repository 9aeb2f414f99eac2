package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smsledger/smsledger/internal/extractor"
	"github.com/smsledger/smsledger/internal/model"
)

func newParseCommand(opts *rootOptions) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "parse [text]",
		Short: "Extract a transaction from message text without touching the balance",
		Long: "Extract a transaction from message text without touching the balance.\n" +
			"With no argument, each line of standard input is parsed as a message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ex := a.extractor()

			if len(args) > 0 {
				msg := model.Message{Sender: sender, Body: strings.Join(args, " ")}
				printMatch(a.out, ex, msg)
				return nil
			}
			return parseLines(a.out, ex, sender, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&sender, "sender", "", "sender identifier, e.g. SBI")

	return cmd
}

func parseLines(w io.Writer, ex *extractor.Extractor, sender string, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		printMatch(w, ex, model.Message{Sender: sender, Body: line})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func printMatch(w io.Writer, ex *extractor.Extractor, msg model.Message) {
	m, ok := ex.ExtractMessage(msg)
	if !ok {
		fmt.Fprintln(w, "no transaction")
		return
	}
	fmt.Fprintf(w, "%s %s (rule %s)\n", m.Transaction.Direction, m.Transaction.Amount, m.Rule)
}
