package executor

import (
	"context"

	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

// Job is a request running in the background.
type Job struct {
	req    *request.Request
	cancel context.CancelFunc
	done   chan struct{}
	data   pipeline.ImageData
	err    error
}

// Enqueue starts req on its own goroutine and returns immediately. If
// target is a ManagedTarget the job is attached to its RequestManager
// first.
func (e *Executor) Enqueue(ctx context.Context, req *request.Request, target Target) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{req: req, cancel: cancel, done: make(chan struct{})}
	if mt, ok := target.(ManagedTarget); ok {
		if m := mt.RequestManager(); m != nil {
			m.Attach(j)
		}
	}
	go func() {
		defer cancel()
		j.data, j.err = e.Execute(ctx, req, target)
		close(j.done)
	}()
	return j
}

// Request returns the job's request.
func (j *Job) Request() *request.Request { return j.req }

// Cancel detaches the job from its run. It is safe to call at any time.
func (j *Job) Cancel() { j.cancel() }

// Done is closed when the job has finished and its callbacks were handed
// to Deliver.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends. A ctx that ends first
// does not cancel the job.
func (j *Job) Wait(ctx context.Context) (pipeline.ImageData, error) {
	select {
	case <-j.done:
		return j.data, j.err
	case <-ctx.Done():
		return pipeline.ImageData{}, ctx.Err()
	}
}
