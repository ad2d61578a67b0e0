package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

var logger = log.WithField("package", "dispatch")

const DEFAULT_CONCURRENCY = 4

// Dispatcher evaluates test cases with bounded concurrency.
// A failing case never prevents the others from producing results.
type Dispatcher struct {
	Evaluator   CaseEvaluator
	Concurrency int       // <= 1 means one case at a time, in submission order
	Progress    io.Writer // progress bar destination, nil disables it
}

func New(evaluator CaseEvaluator, concurrency int) *Dispatcher {
	return &Dispatcher{
		Evaluator:   evaluator,
		Concurrency: concurrency,
	}
}

// Run evaluates every case in the background and returns the results channel,
// closed once all cases completed. Each result is delivered as soon as its case
// finishes. Sequential mode preserves submission order; concurrent mode
// delivers in completion order. The channel is buffered for the whole
// batch so a slow consumer never stalls workers.
func (d *Dispatcher) Run(ctx context.Context, cases []models.TestCase) <-chan models.CaseResult {
	results := make(chan models.CaseResult, len(cases))
	bar := d.newProgressBar(len(cases))

	emit := func(tc models.TestCase) {
		start := time.Now()
		outcome := d.evaluate(ctx, tc)
		results <- models.CaseResult{Case: tc, Outcome: outcome, Duration: time.Since(start)}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
		close(results)
	}

	if d.Concurrency <= 1 {
		logger.Infof("Run: starting %d cases sequentially...", len(cases))
		go func() {
			for _, tc := range cases {
				emit(tc)
			}
			finish()
			logger.Info("Run: done.")
		}()
		return results
	}

	logger.Infof("Run: starting %d cases with %d workers...", len(cases), d.Concurrency)
	go func() {
		p := pool.New().WithMaxGoroutines(d.Concurrency)
		for _, tc := range cases {
			tc := tc
			p.Go(func() {
				emit(tc)
			})
		}
		p.Wait()
		finish()
		logger.Info("Run: done.")
	}()
	return results
}

// evaluate isolates the case: a panicking evaluator becomes an aborted outcome
func (d *Dispatcher) evaluate(ctx context.Context, tc models.TestCase) (outcome models.ComparisonOutcome) {
	l := caseLogger(tc)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = models.NewFailedOutcome(fmt.Errorf("%w: evaluator panic: %v", models.ErrEnvironment, r))
		}
		if outcome.Aborted() {
			l.WithField("kind", outcome.ErrorKind).WithField("error", outcome.Err).Error("Test case aborted")
			return
		}
		l.WithField("structure_match", outcome.StructureMatch).
			WithField("content_match", outcome.ContentMatch).
			WithField("duration", time.Since(start).Round(time.Millisecond)).
			Info("Test case finished")
	}()

	l.Info("Test case started")
	return d.Evaluator.Evaluate(ctx, tc)
}

func (d *Dispatcher) newProgressBar(total int) *progressbar.ProgressBar {
	if d.Progress == nil || total == 0 {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(d.Progress),
		progressbar.OptionSetDescription("testing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(120*time.Millisecond),
	)
	_ = bar.RenderBlank()
	return bar
}

func caseLogger(tc models.TestCase) *log.Entry {
	return logger.WithFields(log.Fields{
		"image":    tc.ImageRef,
		"workflow": tc.WorkflowName,
		"sample":   tc.DataSampleID,
	})
}
