package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"triagem/internal/app"
	"triagem/internal/classifier"
	"triagem/internal/config"
	"triagem/internal/domain"
	"triagem/internal/triage"
)

const maxCSVFileBytes = 64 << 20

type rootOptions struct {
	verbose      bool
	noColor      bool
	maxSentences int
}

// session holds what a subcommand needs once flags and env are parsed.
type session struct {
	engines *app.Engines
	log     *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "triagem",
		Short:         "Resume e classifica tickets de suporte",
		Long:          "triagem resume e classifica tickets de suporte, usando modelos quando configurados\ne heurísticas determinísticas quando não.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	pf.IntVar(&opts.maxSentences, "max-sentences", 0, "maximum summary sentences (default MAX_SENTENCES)")

	cmd.AddCommand(newTextCommand(opts))
	cmd.AddCommand(newCSVCommand(opts))

	return cmd
}

func newSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	level := slog.LevelError
	if opts.verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if opts.noColor {
		color.Disable()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if opts.maxSentences > 0 {
		cfg.MaxSentences = opts.maxSentences
	}

	return &session{
		engines: app.NewEngines(cmd.Context(), cfg, nil, log),
		log:     log,
	}, nil
}

func newTextCommand(opts *rootOptions) *cobra.Command {
	var labels string

	cmd := &cobra.Command{
		Use:   "text [ticket text]",
		Short: "Triage one ticket given as arguments or on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			if strings.TrimSpace(text) == "" {
				return errors.New("ticket text is empty")
			}

			sess, err := newSession(cmd, opts)
			if err != nil {
				return err
			}

			ticket := sess.engines.Processor.ProcessText(cmd.Context(), text, triage.ParseLabels(labels))
			printTicket(cmd.OutOrStdout(), ticket)

			return nil
		},
	}

	cmd.Flags().StringVarP(&labels, "labels", "l", "", "comma or semicolon separated categories (default built-in list)")

	return cmd
}

func newCSVCommand(opts *rootOptions) *cobra.Command {
	var (
		column    string
		labels    string
		separator string
	)

	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Triage every row of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFileLimited(args[0], maxCSVFileBytes)
			if err != nil {
				return err
			}

			if separator == "tab" || separator == `\t` {
				separator = "\t"
			}

			sess, err := newSession(cmd, opts)
			if err != nil {
				return err
			}

			result, err := sess.engines.Processor.ProcessCSV(cmd.Context(), data, triage.BatchRequest{
				Column:    column,
				Labels:    triage.ParseLabels(labels),
				Separator: separator,
			})
			if err != nil {
				return fmt.Errorf("process csv: %w", err)
			}

			printBatch(cmd.OutOrStdout(), result)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&column, "column", "c", "", "column holding the ticket text")
	flags.StringVarP(&labels, "labels", "l", "", "comma or semicolon separated categories (default built-in list)")
	flags.StringVarP(&separator, "sep", "s", "", "field separator, one character or \"tab\" (default ';')")
	_ = cmd.MarkFlagRequired("column")

	return cmd
}

func readFileLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(f), limit+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file is larger than %d bytes", limit)
	}

	return data, nil
}

func printTicket(w io.Writer, ticket domain.Ticket) {
	summary := ticket.Summary
	if summary == "" {
		summary = "(vazio)"
	}

	label := ticket.Label
	if label == "" {
		label = "(sem categoria)"
	}

	fmt.Fprintf(w, "%s %s\n%s\n\n", color.Bold.Sprint("Resumo"), sourceTag(ticket.SummarySource), summary)
	fmt.Fprintf(w, "%s %s\n%s\n", color.Bold.Sprint("Categoria"), sourceTag(ticket.LabelSource), color.Green.Sprint(label))

	ranked := classifier.Result{Scores: ticket.Scores}.Ranked()
	if len(ranked) > 0 {
		fmt.Fprintln(w)
		for _, ls := range ranked {
			fmt.Fprintf(w, "  %-24s %.2f\n", ls.Label, ls.Score)
		}
	}

	if ticket.Language != "" {
		fmt.Fprintf(w, "\nIdioma: %s\n", ticket.Language)
	}
}

func printBatch(w io.Writer, result *triage.BatchResult) {
	fmt.Fprintln(w, color.Green.Sprintf("%d tickets processados", len(result.Tickets)))
	fmt.Fprintf(w, "Codificação: %s\n\n", result.Charset)
	fmt.Fprint(w, result.Preview)
	fmt.Fprintf(w, "\n%s %s\n", color.Bold.Sprint("Arquivo:"), result.OutputPath)
}

func sourceTag(source domain.Source) string {
	switch source {
	case domain.SourceModel:
		return color.Cyan.Sprint("(modelo)")
	case domain.SourceRule:
		return color.Yellow.Sprint("(regra)")
	case domain.SourceFallback:
		return color.Yellow.Sprint("(heurística)")
	default:
		return ""
	}
}
