package policy

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sharedcode/hybridstore/metrics"
)

// RatedTicket is a reinsertion policy that throttles the reclaimer's
// carry-forward volume to a target byte rate, translated from foyer's
// RatedTicketReinsertionPolicy (original_source foyer-storage
// src/reinsertion/rated_ticket.rs). The Rust original wraps a bespoke
// token bucket (RatedTicket{ rate, tokens }) with probe()/reduce(f64)
// methods; here golang.org/x/time/rate (seen in the pack's dependency
// graph via nmxmxh-inos_v1's go.mod) plays that role: Tokens() stands in
// for probe(), and an unconditional ReserveN against the metrics-observed
// byte delta stands in for reduce(delta).
//
// judge() ignores the candidate key and weight entirely: like the
// original, it only samples how many bytes op_bytes_reinsert has grown by
// since the last call and spends that many tokens, so the throttle tracks
// actual reinsert throughput rather than per-call estimates.
type RatedTicket struct {
	limiter *rate.Limiter
	ctx     Context
	last    atomic.Int64
}

// NewRatedTicket builds a policy capped at ratePerSecond bytes/second with
// the given burst allowance.
func NewRatedTicket(ratePerSecond float64, burst int) *RatedTicket {
	return &RatedTicket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (p *RatedTicket) Init(ctx Context) {
	p.ctx = ctx
}

func (p *RatedTicket) Judge(_ []byte, _ int) bool {
	res := p.limiter.Tokens() > 0
	if p.ctx.Metrics == nil {
		return res
	}
	current, _ := p.ctx.Metrics.Get(metrics.OpBytesReinsert)
	last := p.last.Load()
	delta := current - last
	if delta > 0 {
		p.last.Store(current)
		// rate.Limiter.ReserveN refuses (and consumes nothing) when n
		// exceeds the burst size, so clamp: reduce() in the original
		// always spends, but spending more than a full burst's worth in
		// one call buys nothing extra, it would already hold the
		// limiter at zero tokens.
		n := delta
		if b := int64(p.limiter.Burst()); n > b {
			n = b
		}
		p.limiter.ReserveN(time.Now(), int(n))
	}
	return res
}

func (p *RatedTicket) OnInsert([]byte, int, bool) {}
func (p *RatedTicket) OnDrop([]byte, int, bool)   {}
