package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"filmate/internal/domain"
	"filmate/internal/logging"
)

// WorkerFunc processes one chat request.
type WorkerFunc func(ctx context.Context, req domain.ChatRequest) error

// InProcess runs the worker on a goroutine in the current process. It stands
// in for the asynchronous Lambda hand-off on the local server.
type InProcess struct {
	work WorkerFunc
	wg   sync.WaitGroup
}

func NewInProcess(work WorkerFunc) (*InProcess, error) {
	if work == nil {
		return nil, errors.New("dispatch: worker must not be nil")
	}
	return &InProcess{work: work}, nil
}

// Dispatch returns immediately. The worker runs detached from ctx's
// cancellation but keeps its values (correlation id).
func (d *InProcess) Dispatch(ctx context.Context, req domain.ChatRequest) error {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.work(detached, req); err != nil {
			logging.FromContext(detached).Error("in-process worker failed",
				slog.String("session", req.SessionID()),
				slog.Any("err", err),
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched request has finished.
func (d *InProcess) Wait() {
	d.wg.Wait()
}
