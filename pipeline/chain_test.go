package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgcache/request"
)

type weighted struct {
	key    string
	weight int
	trace  *[]string
}

func (w *weighted) Key() string     { return w.key }
func (w *weighted) SortWeight() int { return w.weight }
func (w *weighted) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	if w.trace != nil {
		*w.trace = append(*w.trace, w.key)
	}
	if w.weight == TerminalWeight {
		return ImageData{DataFrom: Memory}, nil
	}
	return chain.Proceed(ctx, chain.Request())
}

func weights(ics []Interceptor) []int {
	out := make([]int, len(ics))
	for i, ic := range ics {
		out[i] = ic.SortWeight()
	}
	return out
}

func TestRegister_SortsByWeight(t *testing.T) {
	t.Parallel()

	p := New(nil)
	for _, w := range []int{90, 0, 95, 100} {
		require.NoError(t, p.Register(&weighted{weight: w}))
	}
	assert.Equal(t, []int{0, 90, 95, 100}, weights(p.Interceptors()))
}

func TestRegister_EqualWeightsKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.Register(&weighted{key: "a", weight: 50}))
	require.NoError(t, p.Register(&weighted{key: "b", weight: 50}))
	require.NoError(t, p.Register(&weighted{key: "c", weight: 10}))
	require.NoError(t, p.Register(&weighted{key: "d", weight: 50}))

	var keys []string
	for _, ic := range p.Interceptors() {
		keys = append(keys, ic.Key())
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, keys)
}

func TestRegister_Rejects(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.Register(&weighted{weight: 100}))
	require.ErrorIs(t, p.Register(&weighted{weight: 100}), ErrDuplicateTerminal)
	require.ErrorIs(t, p.Register(&weighted{weight: 101}), ErrInvalidWeight)
	require.ErrorIs(t, p.Register(&weighted{weight: -1}), ErrInvalidWeight)
	assert.Len(t, p.Interceptors(), 1)
}

func TestExecute_RunsInOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	p := New(nil).MustRegister(
		&weighted{key: "terminal", weight: 100, trace: &trace},
		&weighted{key: "late", weight: 60, trace: &trace},
		&weighted{key: "early", weight: 5, trace: &trace},
	)
	data, err := p.Execute(context.Background(), request.New("x://y"))
	require.NoError(t, err)
	assert.Equal(t, Memory, data.DataFrom)
	assert.Equal(t, []string{"early", "late", "terminal"}, trace)
}

func TestExecute_NoTerminal(t *testing.T) {
	t.Parallel()

	p := New(nil).MustRegister(&weighted{weight: 10})
	_, err := p.Execute(context.Background(), request.New("x://y"))
	require.ErrorIs(t, err, ErrNoTerminal)

	_, err = New(nil).Execute(context.Background(), request.New("x://y"))
	require.ErrorIs(t, err, ErrNoTerminal)
}

// rewriter derives a new request for downstream stages.
type rewriter struct{}

func (rewriter) Key() string     { return "Rewrite" }
func (rewriter) SortWeight() int { return 30 }
func (r rewriter) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req := chain.Request().Clone()
	req.Transformations = append(req.Transformations, invert{})
	return chain.Proceed(ctx, req)
}

type keySpy struct{ seen *string }

func (keySpy) Key() string     { return "Spy" }
func (keySpy) SortWeight() int { return 40 }
func (s keySpy) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	*s.seen = chain.RequestContext().MemoryKey
	return chain.Proceed(ctx, chain.Request())
}

func TestProceed_DerivedRequestRekeys(t *testing.T) {
	t.Parallel()

	var seen string
	p := New(nil).MustRegister(rewriter{}, keySpy{seen: &seen}, &weighted{weight: 100})
	req := request.New("x://y")
	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, seen, "_transformations=[Invert]")
	assert.Empty(t, req.Transformations, "the caller's request must not change")
}

func TestExecute_ResolvesSizeOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	req := request.New("x://y")
	req.SizeResolver = request.SizeResolverFunc(func(context.Context) (request.Size, error) {
		calls++
		return request.Size{Width: 10, Height: 10}, nil
	})
	p := New(nil).MustRegister(rewriter{}, &weighted{weight: 100})
	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
