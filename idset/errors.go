package idset

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	//ErrInvalidCommandSequence a GLOBSET command whose precondition does not hold
	ErrInvalidCommandSequence = errors.New("invalid GLOBSET command sequence")
	//ErrUnorderedReplicaSequence replica identifiers are not in ascending order
	ErrUnorderedReplicaSequence = errors.New("unordered replica sequence")
	//ErrUnformattedGLOBSET ranges that are not sorted, disjoint and coalesced
	ErrUnformattedGLOBSET = errors.New("unformatted GLOBSET")
	//ErrTruncated the buffer ends inside a replica identifier or GLOBSET
	ErrTruncated = errors.New("truncated IDSET")
	//ErrFormMismatch REPLID and REPLGUID form sets cannot be combined
	ErrFormMismatch = errors.New("IDSET forms differ")
	//ErrTooManyValues the set holds more values than can be listed one by one
	ErrTooManyValues = errors.New("too many values to enumerate")
)

//UnorderedReplicaError reports the first replica identifier that is not greater than the one before it
type UnorderedReplicaError struct {
	Index    int
	Previous string
	Current  string
}

func (e *UnorderedReplicaError) Error() string {
	return fmt.Sprintf("%s: replica %d (%s) does not follow %s", ErrUnorderedReplicaSequence, e.Index, e.Current, e.Previous)
}

//Is matches ErrUnorderedReplicaSequence
func (e *UnorderedReplicaError) Is(target error) bool {
	return target == ErrUnorderedReplicaSequence
}

func invalidCommand(pos int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidCommandSequence, "offset %d: %s", pos, fmt.Sprintf(format, args...))
}

func truncated(pos int) error {
	return errors.Wrapf(ErrTruncated, "offset %d", pos)
}
