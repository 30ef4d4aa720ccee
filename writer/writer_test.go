package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/metrics"
	"github.com/sharedcode/hybridstore/policy"
)

type fakeEnqueuer struct {
	calls []struct {
		key, value []byte
		seq        uint64
	}
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, key, value []byte, _ entry.Compression, seq uint64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, struct {
		key, value []byte
		seq        uint64
	}{key, value, seq})
	return nil
}

type fakePolicy struct {
	verdict           bool
	judges            int
	inserted, dropped int
}

func (p *fakePolicy) Init(policy.Context)           {}
func (p *fakePolicy) Judge([]byte, int) bool        { p.judges++; return p.verdict }
func (p *fakePolicy) OnInsert([]byte, int, bool)    { p.inserted++ }
func (p *fakePolicy) OnDrop([]byte, int, bool)      { p.dropped++ }

func TestFinishAdmitsWhenJudgeTrue(t *testing.T) {
	enq := &fakeEnqueuer{}
	pol := &fakePolicy{verdict: true}
	w := New([]byte("k"), 1, pol, enq, metrics.NewSink())

	admitted, err := w.Finish(context.Background(), []byte("value"))
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Equal(t, 1, pol.inserted)
	assert.Equal(t, 0, pol.dropped)
	assert.Len(t, enq.calls, 1)
}

func TestFinishDropsWhenJudgeFalseAndNotForced(t *testing.T) {
	enq := &fakeEnqueuer{}
	pol := &fakePolicy{verdict: false}
	w := New([]byte("k"), 1, pol, enq, metrics.NewSink())

	admitted, err := w.Finish(context.Background(), []byte("value"))
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, 0, pol.inserted)
	assert.Equal(t, 1, pol.dropped)
	assert.Empty(t, enq.calls)
}

func TestForceOverridesJudgeFalse(t *testing.T) {
	enq := &fakeEnqueuer{}
	pol := &fakePolicy{verdict: false}
	w := New([]byte("k"), 1, pol, enq, metrics.NewSink())
	w.SetForce(true)

	admitted, err := w.Finish(context.Background(), []byte("value"))
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Equal(t, 1, pol.inserted)
}

func TestJudgeIsMemoized(t *testing.T) {
	pol := &fakePolicy{verdict: true}
	w := New([]byte("k"), 1, pol, &fakeEnqueuer{}, metrics.NewSink())
	w.Judge()
	w.Judge()
	w.Judge()
	// Finish calls Judge again internally; the policy should still have
	// been probed exactly once, by the first explicit call above.
	_, _ = w.Finish(context.Background(), []byte("v"))
	assert.Equal(t, 1, pol.judges)
}

func TestDiscardDeliversDropExactlyOnce(t *testing.T) {
	pol := &fakePolicy{verdict: true}
	w := New([]byte("k"), 1, pol, &fakeEnqueuer{}, metrics.NewSink())
	w.Discard()
	w.Discard()
	assert.Equal(t, 1, pol.dropped)
}

func TestFinishTwiceErrors(t *testing.T) {
	enq := &fakeEnqueuer{}
	pol := &fakePolicy{verdict: true}
	w := New([]byte("k"), 1, pol, enq, metrics.NewSink())
	_, err := w.Finish(context.Background(), []byte("v"))
	require.NoError(t, err)
	_, err = w.Finish(context.Background(), []byte("v"))
	assert.Error(t, err)
}
