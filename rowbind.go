package rowbind

import (
	"github.com/sirupsen/logrus"
)

// Row is one table row: an ordered column list plus access by column index.
// Implementations may compute values lazily; the engines only read each
// column at most once per traversal.
type Row interface {
	Columns() []string
	Value(i int) (any, error)
}

// RowSource is a forward-only, single-pass sequence of rows, in the style
// of sql.Rows: Next advances, Row returns the current row, Err reports the
// first iteration failure after Next returns false.
type RowSource interface {
	Next() bool
	Row() Row
	Err() error
}

// Params carries caller-supplied values through every recursive step of a
// construct or deconstruct call. The engines never interpret them; they are
// handed to contract hooks unchanged.
type Params map[string]any

// Options configures one engine call. The zero value is usable; newOptions
// fills in the default reflector and logger.
type Options struct {
	Reflector Reflector
	Logger    *logrus.Logger
	Silent    bool // suppress the trailing-rows warning
	Params    Params
}

// Option mutates per-call Options.
type Option func(*Options)

// WithReflector overrides the reflection contract used to resolve shapes.
func WithReflector(r Reflector) Option {
	return func(o *Options) { o.Reflector = r }
}

// WithLogger routes engine warnings to l instead of the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithSilent suppresses the warning emitted when rows remain after
// ConstructOne finishes its object.
func WithSilent() Option {
	return func(o *Options) { o.Silent = true }
}

// WithParams attaches opaque pass-through values for contract hooks.
func WithParams(p Params) Option {
	return func(o *Options) { o.Params = p }
}

func newOptions(opts []Option) *Options {
	o := &Options{
		Reflector: DefaultReflector(),
		Logger:    logrus.StandardLogger(),
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.Reflector == nil {
		o.Reflector = DefaultReflector()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
