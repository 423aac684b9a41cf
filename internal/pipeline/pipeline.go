package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/sitegraph/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the accumulated
// report from previous steps.
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the report to modify.
	// Returns an error if the step fails critically; non-critical errors
	// should be logged or recorded in the report and return nil.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// describer is implemented by steps that have a human-readable progress line.
type describer interface {
	Describe() string
}

// Pipeline orchestrates the execution of multiple steps.
//
// Steps added with AddStep run in order until one fails or the context ends.
// Steps added with AddFinalStep run afterwards, even when the context ended,
// so that a partial run still writes its results.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalSteps run after steps, with a context that is never cancelled.
	finalSteps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// progress receives one "[n/N] ..." line per step. Nil disables it.
	progress io.Writer

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and the last error
// is recorded in the report, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithProgress prints a numbered line to w before each step runs.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		p.progress = w
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep or AddFinalStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		finalSteps:      make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalStep appends a step that also runs after cancellation.
func (p *Pipeline) AddFinalStep(step Step) {
	p.finalSteps = append(p.finalSteps, step)
}

// AddFinalSteps appends multiple final steps to the pipeline.
func (p *Pipeline) AddFinalSteps(steps ...Step) {
	p.finalSteps = append(p.finalSteps, steps...)
}

// Execute runs the steps and then the final steps.
//
// When ctx ends, the remaining regular steps are skipped, the report is
// marked as interrupted and the final steps still run. A step failing for
// any other reason stops the pipeline, final steps included, unless
// WithContinueOnError is set.
//
// The returned error joins the context error, if any, with the first error
// of each phase.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	total := len(p.steps) + len(p.finalSteps)

	runErr := p.run(ctx, report, p.steps, 0, total)
	if runErr != nil && !isCancellation(runErr) && !p.continueOnError {
		return runErr
	}
	if ctx.Err() != nil {
		report.Interrupted = true
		runErr = ctx.Err()
	}
	report.FinishedAt = time.Now()

	finalErr := p.run(context.WithoutCancel(ctx), report, p.finalSteps, len(p.steps), total)
	return errors.Join(runErr, finalErr)
}

// run executes steps in order. offset is the number of steps already run.
func (p *Pipeline) run(ctx context.Context, report *model.CrawlReport, steps []Step, offset, total int) error {
	var firstErr error
	for i, step := range steps {
		// Check for cancellation before starting each step
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.printProgress(offset+i+1, total, step)
		p.logger.Info("executing step",
			"step", step.Name(),
			"start_url", report.StartURL,
		)

		err := step.Do(ctx, report)
		report.MarkStep(step.Name())
		if err == nil {
			p.logger.Debug("step completed", "step", step.Name())
			continue
		}

		if isCancellation(err) && ctx.Err() != nil {
			p.logger.Warn("step interrupted", "step", step.Name())
			return err
		}

		p.logger.Error("step failed",
			"step", step.Name(),
			"start_url", report.StartURL,
			"error", err,
		)
		report.Error = err.Error()

		if !p.continueOnError {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return firstErr
}

func (p *Pipeline) printProgress(n, total int, step Step) {
	if p.progress == nil {
		return
	}
	text := step.Name()
	if d, ok := step.(describer); ok {
		text = d.Describe()
	}
	fmt.Fprintf(p.progress, "[%d/%d] %s\n", n, total, text)
}

// StepCount returns the number of steps in the pipeline, final steps included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalSteps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalSteps {
		names = append(names, step.Name())
	}
	return names
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
