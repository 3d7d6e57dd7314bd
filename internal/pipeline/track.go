package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/store"
)

// RunObserver is implemented by recorders that also count finished runs.
type RunObserver interface {
	RunFinished(status model.RunStatus)
}

// Track runs the pipeline and records the outcome in st. loadMs is the time
// the caller spent reading input and is folded into the summary totals.
// The returned run reflects the final status even when err is non-nil.
func (p *Pipeline) Track(ctx context.Context, st store.Store, origin string, in Input, loadMs int64) (*model.Run, *Result, error) {
	run, err := st.CreateRun(ctx, origin)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("origin", origin))

	res, runErr := p.Run(ctx, in)
	if runErr != nil {
		// Record the failure even when ctx was cancelled.
		if err := st.FailRun(context.WithoutCancel(ctx), run.ID, runErr); err != nil {
			log.Error("pipeline: record failed run", zap.Error(err))
		}
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		run.UpdatedAt = time.Now().UTC()
		p.finished(run.Status)
		log.Error("pipeline: run failed", zap.Error(runErr))
		return run, nil, runErr
	}

	res.Summary.LoadMs = loadMs
	res.Summary.TotalMs += loadMs
	if err := st.CompleteRun(ctx, run.ID, &res.Summary); err != nil {
		return run, res, eris.Wrap(err, "pipeline: complete run")
	}
	run.Status = model.RunStatusComplete
	run.Summary = &res.Summary
	run.UpdatedAt = time.Now().UTC()
	p.finished(run.Status)

	return run, res, nil
}

func (p *Pipeline) finished(status model.RunStatus) {
	if ro, ok := p.recorder.(RunObserver); ok {
		ro.RunFinished(status)
	}
}
