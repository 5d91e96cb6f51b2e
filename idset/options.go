package idset

import (
	"go.uber.org/zap"
)

//Options controls how strictly IDSETs and GLOBSETs are decoded
type Options struct {
	//Strict rejects unformatted GLOBSETs, unordered replicas and an End with bytes left on the stack.
	//Lenient decoding repairs what it can and logs a warning.
	Strict bool
	Logger *zap.Logger
}

//DefaultOptions are strict.
//Some servers end a GLOBSET with a Push still on the stack (Push, Range, End with no Pop).
//Strict decoding rejects that with ErrInvalidCommandSequence, decode such sets with Lenient.
func DefaultOptions() Options {
	return Options{Strict: true, Logger: zap.NewNop()}
}

//Lenient returns a copy of the options with strict checks turned off
func (o Options) Lenient() Options {
	o.Strict = false
	return o
}

func (o Options) normalize() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
