package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sharedcode/hybridstore/metrics"
)

func TestRatedTicketJudgesTrueWithFreshBurst(t *testing.T) {
	p := NewRatedTicket(1024, 4096)
	p.Init(Context{Metrics: metrics.NewSink()})
	assert.True(t, p.Judge([]byte("k"), 0))
}

func TestRatedTicketSpendsObservedDelta(t *testing.T) {
	sink := metrics.NewSink()
	p := NewRatedTicket(1, 10)
	p.Init(Context{Metrics: sink})

	sink.Add(metrics.OpBytesReinsert, 10)
	p.Judge([]byte("k"), 0)
	assert.InDelta(t, 0, p.limiter.Tokens(), 1)

	sink.Add(metrics.OpBytesReinsert, 5)
	before := p.limiter.Tokens()
	p.Judge([]byte("k"), 0)
	assert.LessOrEqual(t, p.limiter.Tokens(), before)
}

func TestRatedTicketWithNilMetricsStillJudges(t *testing.T) {
	p := NewRatedTicket(1024, 4096)
	p.Init(Context{})
	assert.NotPanics(t, func() { p.Judge([]byte("k"), 0) })
}
