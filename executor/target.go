package executor

import (
	"sync"

	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

// Target receives a request's progress. Callbacks run through the
// executor's Deliver function.
type Target interface {
	OnStart(req *request.Request)
	OnSuccess(req *request.Request, data pipeline.ImageData)
	OnError(req *request.Request, err error)
	OnCancel(req *request.Request)
}

// TargetFuncs adapts optional callbacks to Target.
type TargetFuncs struct {
	Start   func(req *request.Request)
	Success func(req *request.Request, data pipeline.ImageData)
	Error   func(req *request.Request, err error)
	Cancel  func(req *request.Request)
}

func (t TargetFuncs) OnStart(req *request.Request) {
	if t.Start != nil {
		t.Start(req)
	}
}

func (t TargetFuncs) OnSuccess(req *request.Request, data pipeline.ImageData) {
	if t.Success != nil {
		t.Success(req, data)
	}
}

func (t TargetFuncs) OnError(req *request.Request, err error) {
	if t.Error != nil {
		t.Error(req, err)
	}
}

func (t TargetFuncs) OnCancel(req *request.Request) {
	if t.Cancel != nil {
		t.Cancel(req)
	}
}

// RequestManager tracks the jobs bound to one target.
type RequestManager interface {
	Attach(job *Job)
}

// ManagedTarget is a Target with a RequestManager; Enqueue attaches every
// new job to it.
type ManagedTarget interface {
	Target
	RequestManager() RequestManager
}

// ViewRequestManager keeps at most one job per view: attaching a new job
// cancels the previous one.
type ViewRequestManager struct {
	mu      sync.Mutex
	current *Job
}

// Attach implements RequestManager.
func (m *ViewRequestManager) Attach(job *Job) {
	m.mu.Lock()
	prev := m.current
	m.current = job
	m.mu.Unlock()
	if prev != nil && prev != job {
		prev.Cancel()
	}
}

// Detach cancels the current job, e.g. when the view goes away.
func (m *ViewRequestManager) Detach() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

// Current returns the job attached last, or nil.
func (m *ViewRequestManager) Current() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
