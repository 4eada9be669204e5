package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/IvanBrykalov/imgcache/request"
)

// TerminalWeight is the sort weight reserved for the terminal interceptor.
const TerminalWeight = 100

// Interceptor is one pipeline stage.
type Interceptor interface {
	// Key identifies the interceptor in logs; it may be empty.
	Key() string
	// SortWeight orders the chain, 0..100.
	SortWeight() int
	// Intercept serves the request or calls chain.Proceed exactly once.
	Intercept(ctx context.Context, chain Chain) (ImageData, error)
}

// Chain is an interceptor's view of the rest of the pipeline.
type Chain interface {
	// Request is the request as seen by this stage.
	Request() *request.Request
	// RequestContext is the execution state.
	RequestContext() *RequestContext
	// Proceed hands req to the next interceptor. Passing a different
	// request re-derives the cache keys for the downstream stages.
	Proceed(ctx context.Context, req *request.Request) (ImageData, error)
}

// Pipeline holds the ordered interceptors.
type Pipeline struct {
	mu           sync.RWMutex
	interceptors []Interceptor
	log          *slog.Logger
}

// New returns an empty pipeline.
func New(lg *slog.Logger) *Pipeline {
	if lg == nil {
		lg = slog.Default()
	}
	return &Pipeline{log: lg.With(slog.String("component", "pipeline"))}
}

// Register inserts ic in weight order, after existing interceptors of the
// same weight.
func (p *Pipeline) Register(ic Interceptor) error {
	w := ic.SortWeight()
	if w < 0 || w > TerminalWeight {
		return ErrInvalidWeight
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if w == TerminalWeight {
		for _, x := range p.interceptors {
			if x.SortWeight() == TerminalWeight {
				return ErrDuplicateTerminal
			}
		}
	}
	ics := append(append([]Interceptor(nil), p.interceptors...), ic)
	sort.SliceStable(ics, func(i, j int) bool { return ics[i].SortWeight() < ics[j].SortWeight() })
	p.interceptors = ics
	return nil
}

// MustRegister is Register for static setups; it panics on error.
func (p *Pipeline) MustRegister(ics ...Interceptor) *Pipeline {
	for _, ic := range ics {
		if err := p.Register(ic); err != nil {
			panic(err)
		}
	}
	return p
}

// Interceptors returns the chain in execution order.
func (p *Pipeline) Interceptors() []Interceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Interceptor(nil), p.interceptors...)
}

// Prepare resolves the request's size and keys without running it.
func (p *Pipeline) Prepare(ctx context.Context, req *request.Request) (*RequestContext, error) {
	return NewRequestContext(ctx, req, p.log)
}

// Execute prepares and runs req.
func (p *Pipeline) Execute(ctx context.Context, req *request.Request) (ImageData, error) {
	rc, err := p.Prepare(ctx, req)
	if err != nil {
		return ImageData{}, err
	}
	return p.Run(ctx, rc)
}

// Run drives a prepared request through the chain.
func (p *Pipeline) Run(ctx context.Context, rc *RequestContext) (ImageData, error) {
	ics := p.Interceptors()
	if len(ics) == 0 || ics[len(ics)-1].SortWeight() != TerminalWeight {
		return ImageData{}, ErrNoTerminal
	}
	c := &chain{ics: ics, rc: rc, req: rc.Request}
	data, err := ics[0].Intercept(ctx, c)
	if err != nil {
		return ImageData{}, err
	}
	rc.Logger.Debug("request served", slog.String("from", data.DataFrom.String()))
	return data, nil
}

type chain struct {
	ics   []Interceptor
	index int
	rc    *RequestContext
	req   *request.Request
}

func (c *chain) Request() *request.Request       { return c.req }
func (c *chain) RequestContext() *RequestContext { return c.rc }

func (c *chain) Proceed(ctx context.Context, req *request.Request) (ImageData, error) {
	next := c.index + 1
	if next >= len(c.ics) {
		return ImageData{}, ErrNoTerminal
	}
	if err := ctx.Err(); err != nil {
		return ImageData{}, err
	}
	if req == nil {
		req = c.req
	}
	if req != c.rc.Request {
		c.rc.setRequest(req)
	}
	return c.ics[next].Intercept(ctx, &chain{ics: c.ics, index: next, rc: c.rc, req: req})
}
