package fxstream

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	//ErrTruncatedStream the buffer ends in the middle of an atom
	ErrTruncatedStream = errors.New("truncated stream")
	//ErrMalformedLength a variable length value declares a zero length, a length past the end of the buffer, or does not fit its type
	ErrMalformedLength = errors.New("malformed length")
	//ErrUnknownPropertyType the property type is not one that can appear in a FastTransfer stream
	ErrUnknownPropertyType = errors.New("unknown property type")
	//ErrInvalidNameKind a named property header with a kind other than dispid or name
	ErrInvalidNameKind = errors.New("invalid named property kind")
	//ErrUnexpectedMarker a marker or property that the grammar does not allow at this point
	ErrUnexpectedMarker = errors.New("unexpected element")
	//ErrDepthExceeded elements nest deeper than Options.MaxDepth
	ErrDepthExceeded = errors.New("maximum element depth exceeded")
	//ErrInvalidSplit the split point falls inside a marker, tag, length or fixed size value
	ErrInvalidSplit = errors.New("invalid split point")
	//ErrUnknownStreamType the stream type is not one of the defined FastTransfer stream types
	ErrUnknownStreamType = errors.New("unknown stream type")
	//ErrTransferFailed the transport reported an error status
	ErrTransferFailed = errors.New("transfer failed")
)

//SchemaViolation is returned when an element breaks the required, forbidden or fixed position property rules
type SchemaViolation struct {
	Element    string
	PropertyID uint16
	Reason     string
	Offset     int
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in %s at offset %d: property 0x%04X %s", e.Element, e.Offset, e.PropertyID, e.Reason)
}

func truncated(pos int) error {
	return errors.Wrapf(ErrTruncatedStream, "offset %d", pos)
}

func malformed(pos int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedLength, "offset %d: %s", pos, fmt.Sprintf(format, args...))
}
