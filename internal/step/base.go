package step

// Base provides the identity plumbing shared by step implementations.
type Base struct {
	info Info
}

// NewBase seeds the helper with step info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// Info implements Step.Info.
func (b *Base) Info() Info {
	return b.info
}

// Func adapts a function into a Step.
type Func struct {
	Base
	fn func(*Context) error
}

// NewFunc wraps fn with info.
func NewFunc(info Info, fn func(*Context) error) *Func {
	return &Func{Base: NewBase(info), fn: fn}
}

// Run implements Step.Run.
func (f *Func) Run(ctx *Context) error {
	return f.fn(ctx)
}
