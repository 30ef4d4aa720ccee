// Package policy implements the admission and reinsertion policy contract
// of spec §4.4: "A policy is polymorphic over {init(context), judge(key,
// weight) -> bool, on_insert(key, weight, judged), on_drop(key, weight,
// judged)}." Admission policies gate a writer's first commit; reinsertion
// policies gate the reclaimer's decision to carry a still-live entry
// forward into a fresh region. Both share the same interface, so one set
// of built-ins (AlwaysAdmit, RatedTicket, Combine) serves either role.
package policy

import "github.com/sharedcode/hybridstore/metrics"

// Context is the handle a policy receives at Init: the metrics sink it may
// read or expect to see updated by callers. It carries no catalog handle;
// policies cannot consult the catalog through it.
type Context struct {
	Metrics *metrics.Sink
}

// Policy is the admission/reinsertion contract. Exactly one of OnInsert or
// OnDrop is delivered per key per spec §4.4's "exactly one obligation"
// invariant; Judge is called first and its result passed back in judged.
type Policy interface {
	Init(ctx Context)
	Judge(key []byte, weight int) bool
	OnInsert(key []byte, weight int, judged bool)
	OnDrop(key []byte, weight int, judged bool)
}

// combined ANDs a set of policies: admission requires every judge to
// return true, and delivers the on_insert/on_drop obligation to all of
// them regardless of which one (if any) vetoed.
type combined struct {
	policies []Policy
}

// Combine ANDs policies into one, per spec §4.4 "admission requires all
// judges true". An empty Combine always admits.
func Combine(policies ...Policy) Policy {
	return &combined{policies: policies}
}

func (c *combined) Init(ctx Context) {
	for _, p := range c.policies {
		p.Init(ctx)
	}
}

func (c *combined) Judge(key []byte, weight int) bool {
	ok := true
	for _, p := range c.policies {
		if !p.Judge(key, weight) {
			ok = false
		}
	}
	return ok
}

func (c *combined) OnInsert(key []byte, weight int, judged bool) {
	for _, p := range c.policies {
		p.OnInsert(key, weight, judged)
	}
}

func (c *combined) OnDrop(key []byte, weight int, judged bool) {
	for _, p := range c.policies {
		p.OnDrop(key, weight, judged)
	}
}
