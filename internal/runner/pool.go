package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently and returns the
// errors in job order. Jobs that have not started when ctx is done are
// skipped with ctx.Err(). A panicking job is reported as an error.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	pool, err := ants.NewPool(maxWorkers)
	if err != nil {
		return []error{fmt.Errorf("creating worker pool: %w", err)}
	}
	defer pool.Release()

	slots := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			slots[i] = err
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slots[i] = fmt.Errorf("job %d panicked: %v", i, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				slots[i] = err
				return
			}
			slots[i] = job(ctx)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			slots[i] = fmt.Errorf("submitting job %d: %w", i, err)
		}
	}
	wg.Wait()

	var errs []error
	for _, err := range slots {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
