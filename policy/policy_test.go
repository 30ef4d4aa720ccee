package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlwaysAdmitJudgesTrue(t *testing.T) {
	var p AlwaysAdmit
	assert.True(t, p.Judge([]byte("k"), 10))
}

func TestAlwaysReinsertJudgesTrue(t *testing.T) {
	var p AlwaysReinsert
	assert.True(t, p.Judge([]byte("k"), 10))
}

func TestCombineRequiresAllTrue(t *testing.T) {
	c := Combine(AlwaysAdmit{}, rejecting{}, AlwaysAdmit{})
	assert.False(t, c.Judge([]byte("k"), 1))
}

func TestCombineAllTrueAdmits(t *testing.T) {
	c := Combine(AlwaysAdmit{}, AlwaysAdmit{})
	assert.True(t, c.Judge([]byte("k"), 1))
}

func TestCombineEmptyAdmits(t *testing.T) {
	c := Combine()
	assert.True(t, c.Judge([]byte("k"), 1))
}

func TestCombineDeliversObligationToAll(t *testing.T) {
	r1, r2 := &recorder{}, &recorder{}
	c := Combine(r1, r2)
	c.OnInsert([]byte("k"), 1, true)
	assert.True(t, r1.inserted)
	assert.True(t, r2.inserted)
}

type rejecting struct{}

func (rejecting) Init(Context)              {}
func (rejecting) Judge([]byte, int) bool     { return false }
func (rejecting) OnInsert([]byte, int, bool) {}
func (rejecting) OnDrop([]byte, int, bool)   {}

type recorder struct {
	inserted, dropped bool
}

func (*recorder) Init(Context)          {}
func (*recorder) Judge([]byte, int) bool { return true }
func (r *recorder) OnInsert([]byte, int, bool) {
	r.inserted = true
}
func (r *recorder) OnDrop([]byte, int, bool) {
	r.dropped = true
}
