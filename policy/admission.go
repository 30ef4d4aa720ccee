package policy

// AlwaysAdmit judges every key admissible and records no state. It is the
// default admission policy when Config specifies none.
type AlwaysAdmit struct{}

func (AlwaysAdmit) Init(Context)                         {}
func (AlwaysAdmit) Judge([]byte, int) bool                { return true }
func (AlwaysAdmit) OnInsert([]byte, int, bool)            {}
func (AlwaysAdmit) OnDrop([]byte, int, bool)              {}

// AlwaysReinsert carries every reclaimed entry forward. It is the default
// reinsertion policy when Config specifies none.
type AlwaysReinsert struct{}

func (AlwaysReinsert) Init(Context)              {}
func (AlwaysReinsert) Judge([]byte, int) bool     { return true }
func (AlwaysReinsert) OnInsert([]byte, int, bool) {}
func (AlwaysReinsert) OnDrop([]byte, int, bool)   {}
