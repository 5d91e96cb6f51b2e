package fxstream

import (
	"go.uber.org/zap"
)

//DefaultMaxDepth bounds element nesting when no limit is configured
const DefaultMaxDepth = 64

//Options controls how strictly streams are decoded
type Options struct {
	//Strict rejects zero length values and fails on the first schema violation.
	//Lenient decoding records violations on the tree and logs them instead.
	Strict   bool
	MaxDepth int
	Logger   *zap.Logger
}

//DefaultOptions are strict with the default depth limit
func DefaultOptions() Options {
	return Options{Strict: true, MaxDepth: DefaultMaxDepth, Logger: zap.NewNop()}
}

//Lenient returns a copy of the options with strict checks turned off
func (o Options) Lenient() Options {
	o.Strict = false
	return o
}

func (o Options) normalize() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
