package engine

import (
	"context"
	"runtime"
	"sync"
)

// BatchItem pairs one request with its terminal outcome.
type BatchItem struct {
	Request Request
	Outcome Outcome
}

// BatchResult holds exactly one outcome per input request, in input order
// regardless of completion order.
type BatchResult struct {
	Items []BatchItem

	TotalOriginalSize int64
	TotalFinalSize    int64
	Succeeded         int
	NoImprovement     int
	Failed            int
	Invalid           int
}

// ByInput returns the outcomes keyed by input path.
func (br BatchResult) ByInput() map[string]Outcome {
	m := make(map[string]Outcome, len(br.Items))
	for _, item := range br.Items {
		m[item.Request.InputPath] = item.Outcome
	}
	return m
}

// CompressBatch applies CompressOne to every request using a bounded worker
// pool. One corrupt or failing input never aborts its siblings: every
// request that entered the batch gets exactly one outcome. Cancelling ctx
// stops scheduling new files and terminates in-flight tool subprocesses.
// onResult, when non-nil, is invoked from worker goroutines as outcomes
// complete (not in input order).
func (e *Engine) CompressBatch(ctx context.Context, reqs []Request, workers int, onResult func(Outcome)) BatchResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	type job struct {
		index int
		req   Request
	}
	type result struct {
		index   int
		outcome Outcome
	}

	jobs := make(chan job, len(reqs))
	results := make(chan result, len(reqs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome := e.processOne(ctx, j.req)
				if onResult != nil {
					onResult(outcome)
				}
				results <- result{index: j.index, outcome: outcome}
			}
		}()
	}

	for i, req := range reqs {
		jobs <- job{index: i, req: req}
	}
	close(jobs)

	wg.Wait()
	close(results)

	br := BatchResult{Items: make([]BatchItem, len(reqs))}
	for i, req := range reqs {
		br.Items[i].Request = req
	}
	for r := range results {
		br.Items[r.index].Outcome = r.outcome
	}

	for _, item := range br.Items {
		br.TotalOriginalSize += item.Outcome.OriginalSize
		br.TotalFinalSize += item.Outcome.FinalSize
		switch item.Outcome.Status {
		case StatusSuccess:
			br.Succeeded++
		case StatusNoImprovement:
			br.NoImprovement++
		case StatusInvalidInput:
			br.Invalid++
		default:
			br.Failed++
		}
	}
	return br
}

// processOne shields the batch from request-level errors by folding them
// into an outcome; per-attempt failures are already handled by CompressOne.
func (e *Engine) processOne(ctx context.Context, req Request) Outcome {
	if ctx.Err() != nil {
		return Outcome{
			InputPath:  req.InputPath,
			OutputPath: req.OutputPath,
			Status:     StatusAllBackendsFailed,
			Detail:     "cancelled before start: " + ctx.Err().Error(),
		}
	}

	outcome, err := e.CompressOne(ctx, req)
	if err != nil {
		outcome.Status = StatusInvalidInput
		outcome.Detail = err.Error()
	}
	return outcome
}
