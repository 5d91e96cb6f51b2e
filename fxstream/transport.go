package fxstream

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
)

//TransferStatus is reported with every buffer a source hands out
type TransferStatus uint16

//Transfer statuses as used by RopFastTransferSourceGetBuffer
const (
	TransferError   TransferStatus = 0x0000
	TransferPartial TransferStatus = 0x0001
	TransferNoRoom  TransferStatus = 0x0002
	TransferDone    TransferStatus = 0x0003
)

func (s TransferStatus) String() string {
	switch s {
	case TransferError:
		return "Error"
	case TransferPartial:
		return "Partial"
	case TransferNoRoom:
		return "NoRoom"
	case TransferDone:
		return "Done"
	}
	return "Unknown"
}

//Buffer sizes
const (
	//BufferSizeServerChoice asks the server to pick the buffer size
	BufferSizeServerChoice = 0xBABE
	//MaxBufferSize bounds the buffer size Collect will grow to after NoRoom
	MaxBufferSize = 1 << 20
)

//BufferSource hands out a FastTransfer stream in bounded chunks
type BufferSource interface {
	GetBuffer(ctx context.Context, max int) ([]byte, TransferStatus, error)
}

//BufferSink accepts a FastTransfer stream in bounded chunks
type BufferSink interface {
	PutBuffer(ctx context.Context, chunk []byte) error
}

//Collect pulls buffers from src until it reports Done and returns the joined stream.
//A NoRoom status doubles the requested size.
func Collect(ctx context.Context, src BufferSource, max int) ([]byte, error) {
	if max <= 0 {
		return nil, errors.Wrapf(ErrTransferFailed, "buffer size %d", max)
	}
	var stream []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, status, err := src.GetBuffer(ctx, max)
		if err != nil {
			return nil, errors.Wrap(err, "get buffer")
		}
		stream = append(stream, chunk...)
		switch status {
		case TransferDone:
			return stream, nil
		case TransferPartial:
		case TransferNoRoom:
			if len(chunk) == 0 {
				if max >= MaxBufferSize {
					return nil, errors.Wrapf(ErrTransferFailed, "no room in a %d byte buffer", max)
				}
				max *= 2
			}
		default:
			return nil, errors.Wrapf(ErrTransferFailed, "status %s after %d bytes", status, len(stream))
		}
	}
}

//Upload cuts a stream at valid split points and hands the pieces to sink in order
func Upload(ctx context.Context, sink BufferSink, stream []byte, chunkSize int, opts Options) error {
	chunks, err := Chunk(stream, chunkSize, opts)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.PutBuffer(ctx, c); err != nil {
			return errors.Wrapf(err, "put buffer %d of %d", i+1, len(chunks))
		}
	}
	return nil
}

//StreamSource serves an in-memory stream, always cutting on valid split points
type StreamSource struct {
	stream []byte
	atoms  []Atom
	pos    int
}

//NewStreamSource lexes stream so it can be served in pieces
func NewStreamSource(stream []byte, opts Options) (*StreamSource, error) {
	atoms, err := Lex(stream, opts)
	if err != nil {
		return nil, err
	}
	return &StreamSource{stream: stream, atoms: atoms}, nil
}

//GetBuffer returns the next piece of at most max bytes
func (s *StreamSource) GetBuffer(ctx context.Context, max int) ([]byte, TransferStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, TransferError, err
	}
	if max <= 0 {
		return nil, TransferNoRoom, nil
	}
	p, ok := nextSplit(s.atoms, len(s.stream), s.pos, max)
	if !ok {
		return nil, TransferNoRoom, nil
	}
	chunk := s.stream[s.pos:p]
	s.pos = p
	if p == len(s.stream) {
		return chunk, TransferDone, nil
	}
	return chunk, TransferPartial, nil
}

//BufferedSink keeps every chunk it is given
type BufferedSink struct {
	Chunks [][]byte
}

//PutBuffer stores a copy of chunk
func (s *BufferedSink) PutBuffer(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Chunks = append(s.Chunks, append([]byte(nil), chunk...))
	return nil
}

//Bytes joins the chunks received so far
func (s *BufferedSink) Bytes() []byte {
	return bytes.Join(s.Chunks, nil)
}
