package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	appanalysis "github.com/bryanwahyu/maestro-analyzer/internal/application/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/bootstrap"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

type analyzeOptions struct {
	file        string
	preset      string
	interactive bool
	out         string
	diagram     bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [description]",
		Short: "Run the seven-layer threat analysis on an architecture description",
		Long: "Run the seven-layer threat analysis locally and print progress.\n" +
			"Press Ctrl-C once to stop after the current step, twice to abort.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the description from a file (- for stdin)")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "Use a bundled example architecture")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Pick a preset or type the description in a form")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the PDF report to this path")
	cmd.Flags().BoolVar(&opts.diagram, "diagram", false, "Also generate a Mermaid architecture diagram")
	cmd.MarkFlagsMutuallyExclusive("file", "preset", "interactive")

	return cmd
}

func (a *app) analyze(cmd *cobra.Command, opts *analyzeOptions, args []string) error {
	start, err := a.startCommand(opts, args)
	if err != nil {
		return err
	}

	cfg, logger, err := a.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	client, err := a.newAI(cfg, logger)
	if err != nil {
		return err
	}
	st, err := bootstrap.OpenStorage(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := bootstrap.NewAnalysis(client, st, bootstrap.NewAssembler(cfg, logger), nil, logger)
	sess, err := svc.Begin(start)
	if err != nil {
		return describeError(err)
	}

	p := newPrinter(cmd.OutOrStdout())
	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			p.Event(ev)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sig, stopSignals := a.signals()
	defer stopSignals()
	go watchInterrupts(ctx, sig, sess, cancel, p)

	run := svc.Execute(ctx, sess, start.WithDiagram)
	<-printed
	p.Result(run)

	if opts.out != "" {
		if err := writeReport(context.WithoutCancel(ctx), svc, run.TenantID, sess, opts.out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to %s\n", opts.out)
	}
	return nil
}

// startCommand picks the description source from flags and args.
func (a *app) startCommand(opts *analyzeOptions, args []string) (appanalysis.StartRunCommand, error) {
	cmd := appanalysis.StartRunCommand{
		TenantID:    localTenant,
		WithDiagram: opts.diagram,
	}
	switch {
	case opts.interactive:
		desc, err := promptDescription(a.stdin)
		if err != nil {
			return cmd, err
		}
		cmd.Architecture = desc
	case opts.file != "":
		desc, err := a.readFile(opts.file)
		if err != nil {
			return cmd, err
		}
		cmd.Architecture = desc
	case opts.preset != "":
		cmd.Preset = opts.preset
	case len(args) > 0:
		cmd.Architecture = strings.Join(args, " ")
	default:
		return cmd, errors.New("provide a description, --file, --preset or --interactive")
	}
	return cmd, nil
}

func (a *app) readFile(path string) (string, error) {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read description: %w", err)
	}
	return string(data), nil
}

type stopper interface {
	RequestStop() bool
}

// watchInterrupts: Ctrl-C pertama minta stop, yang kedua cancel context.
func watchInterrupts(ctx context.Context, sig <-chan os.Signal, s stopper, cancel context.CancelFunc, p *printer) {
	stopping := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if stopping {
				p.Warn("Aborting analysis.")
				cancel()
				return
			}
			stopping = true
			s.RequestStop()
			p.Warn("Stopping after the current step. Press Ctrl-C again to abort.")
		}
	}
}

func writeReport(ctx context.Context, svc *appanalysis.Service, tenant string, sess *appanalysis.Session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := svc.Report(ctx, tenant, sess.ID(), f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return describeError(err)
	}
	return f.Close()
}

// describeError shows the user message of classified errors.
func describeError(err error) error {
	fe, ok := failure.As(err)
	if !ok {
		return err
	}
	if fe.TechnicalDetails != "" {
		return fmt.Errorf("%s (%s)", fe.UserMessage, fe.TechnicalDetails)
	}
	return errors.New(fe.UserMessage)
}
