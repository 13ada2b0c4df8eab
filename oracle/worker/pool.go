package worker

import (
	"context"
	"sync"
	"time"

	"github.com/armon/go-metrics"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/x/gora/types"
)

// Report is the preview of a whole URL request. SourceErrors uses the same
// bit layout as a response body.
type Report struct {
	Results      []Result `json:"results"`
	SourceErrors uint64   `json:"source_errors"`
}

type job struct {
	index  int
	source types.SourceSpecURL
}

// Pool runs source previews on a fixed number of workers.
type Pool struct {
	executor *Executor
	workers  int
}

func NewPool(executor *Executor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{executor: executor, workers: workers}
}

// Preview runs one job per source and returns the results ordered by
// source index.
func (p *Pool) Preview(ctx context.Context, spec types.RequestSpec) (*Report, error) {
	if err := spec.ValidateBasic(); err != nil {
		return nil, err
	}
	if spec.Type != types.RequestTypeURL {
		return nil, types.ErrInvalidRequestType.Wrapf("preview needs a url request, got %s", spec.Type)
	}
	return p.Run(ctx, spec.URLSources()), nil
}

// Run previews sources concurrently.
func (p *Pool) Run(ctx context.Context, sources []types.SourceSpecURL) *Report {
	defer metrics.MeasureSince([]string{types.ModuleName, "preview", "duration"}, time.Now())

	jobs := make(chan job)
	results := make([]Result, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < p.workers && i < len(sources); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// each worker writes only its own slots
				results[j.index] = p.executor.Execute(ctx, j.index, j.source)
			}
		}()
	}

	for i, src := range sources {
		jobs <- job{index: i, source: src}
	}
	close(jobs)
	wg.Wait()

	report := &Report{Results: results}
	for _, r := range results {
		if r.Failed() {
			if r.Index < 64 {
				report.SourceErrors |= 1 << uint(r.Index)
			}
			metrics.IncrCounter([]string{types.ModuleName, "preview", "failure"}, 1)
			log.Debugf("preview source %d (%s) failed: %s", r.Index, r.URL, r.Error)
			continue
		}
		metrics.IncrCounter([]string{types.ModuleName, "preview", "success"}, 1)
	}

	return report
}
