package hidroweb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hidroweb-scraper/models"
	"hidroweb-scraper/utils"
)

// StationProcessor handles a single station. Downloader is the production
// implementation.
type StationProcessor interface {
	Process(ctx context.Context, code string, attempt int) models.DownloadOutcome
}

// ProgressFunc receives a cumulative index across passes, the running total
// and a label for the station being processed.
type ProgressFunc func(index, total int, label string)

// StopFunc is polled between stations; returning true ends the batch.
type StopFunc func() bool

var passPauses = []time.Duration{20 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}

// Orchestrator runs a batch of stations through a processor, retrying only
// transient failures on later passes.
type Orchestrator struct {
	proc      StationProcessor
	logger    *utils.Logger
	maxPasses int
	progress  ProgressFunc
	stop      StopFunc
	sleep     func(context.Context, time.Duration)
}

func NewOrchestrator(proc StationProcessor, logger *utils.Logger, maxPasses int) *Orchestrator {
	if maxPasses < 1 {
		maxPasses = 1
	}
	return &Orchestrator{
		proc:      proc,
		logger:    logger,
		maxPasses: maxPasses,
		sleep:     pause,
	}
}

// OnProgress registers fn to be called before each station is processed.
func (o *Orchestrator) OnProgress(fn ProgressFunc) *Orchestrator {
	o.progress = fn
	return o
}

// StopWhen registers a cancellation predicate.
func (o *Orchestrator) StopWhen(fn StopFunc) *Orchestrator {
	o.stop = fn
	return o
}

func (o *Orchestrator) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.stop != nil && o.stop()
}

// Run processes codes in order. Duplicate codes are processed once. Stations
// never attempted because the batch was stopped are reported as skipped.
func (o *Orchestrator) Run(ctx context.Context, codes []string) *models.BatchResult {
	res := &models.BatchResult{RunID: uuid.NewString()}

	seen := utils.NewKeySet()
	var pending []string
	for _, c := range codes {
		if seen.Add(c) {
			pending = append(pending, c)
		}
	}

	o.logger.Info("[orchestrator] Run %s: %d stations, up to %d passes", res.RunID, len(pending), o.maxPasses)

	offset := 0
	for len(pending) > 0 && res.Passes < o.maxPasses {
		if o.stopped(ctx) {
			res.Interrupted = true
			if res.Passes == 0 {
				res.Skipped = pending
				pending = nil
			}
			break
		}
		res.Passes++
		pass := res.Passes
		if pass > 1 {
			o.logger.Info("[orchestrator] Pass %d/%d: retrying %d stations", pass, o.maxPasses, len(pending))
		}

		var retry []string
		total := offset + len(pending)
		for i, code := range pending {
			if o.stopped(ctx) {
				res.Interrupted = true
				if pass == 1 {
					res.Skipped = append(res.Skipped, pending[i:]...)
				} else {
					retry = append(retry, pending[i:]...)
				}
				break
			}

			label := "downloading " + code
			if pass > 1 {
				label = fmt.Sprintf("downloading %s (retry %d)", code, pass-1)
			}
			if o.progress != nil {
				o.progress(offset+i+1, total, label)
			}

			out := o.proc.Process(ctx, code, pass)
			switch out.Kind {
			case models.OutcomeDownloaded:
				res.Downloaded = append(res.Downloaded, code)
			case models.OutcomeNotFound:
				res.NotFound = append(res.NotFound, code)
			case models.OutcomeNoData:
				res.NoData = append(res.NoData, code)
			default:
				retry = append(retry, code)
			}

			o.sleep(ctx, passPauses[min(pass, len(passPauses))-1])
		}

		offset = total
		pending = retry
		if res.Interrupted {
			break
		}
	}
	res.Failed = pending

	o.logger.Info("[orchestrator] Run %s finished: %d downloaded, %d not found, %d without data, %d failed, %d skipped",
		res.RunID, len(res.Downloaded), len(res.NotFound), len(res.NoData), len(res.Failed), len(res.Skipped))
	return res
}
