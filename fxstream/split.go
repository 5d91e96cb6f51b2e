package fxstream

import (
	"sort"

	"github.com/pkg/errors"
)

//SplitPoints returns every atom boundary of buf, starting with 0 and ending with len(buf).
//Any offset strictly inside a varSizeValue is a valid split point as well.
func SplitPoints(buf []byte, opts Options) ([]int, error) {
	atoms, err := Lex(buf, opts)
	if err != nil {
		return nil, err
	}
	points := make([]int, 0, len(atoms)+1)
	points = append(points, 0)
	for _, a := range atoms {
		points = append(points, a.Offset+a.Len)
	}
	return points, nil
}

//canSplit reports whether p is a valid split point of a stream lexed into atoms
func canSplit(atoms []Atom, p int) bool {
	if p == 0 {
		return true
	}
	i := sort.Search(len(atoms), func(i int) bool { return atoms[i].Offset+atoms[i].Len >= p })
	if i == len(atoms) {
		return false
	}
	a := atoms[i]
	if a.Offset+a.Len == p {
		return true
	}
	return a.Kind == AtomVarValue && p > a.Offset
}

//SplitAt cuts a stream in two at p. The halves share memory with buf.
func SplitAt(buf []byte, p int, opts Options) (prefix, suffix []byte, err error) {
	if p < 0 || p > len(buf) {
		return nil, nil, errors.Wrapf(ErrInvalidSplit, "offset %d outside a %d byte stream", p, len(buf))
	}
	atoms, err := Lex(buf, opts)
	if err != nil {
		return nil, nil, err
	}
	if p < len(buf) && !canSplit(atoms, p) {
		return nil, nil, errors.Wrapf(ErrInvalidSplit, "offset %d", p)
	}
	return buf[:p], buf[p:], nil
}

//nextSplit finds the largest valid split point in (start, start+max]
func nextSplit(atoms []Atom, total, start, max int) (int, bool) {
	end := start + max
	if end >= total {
		return total, true
	}
	if canSplit(atoms, end) {
		return end, true
	}
	//the atom holding end cannot be cut, so cut in front of it
	i := sort.Search(len(atoms), func(i int) bool { return atoms[i].Offset+atoms[i].Len > end })
	if i < len(atoms) && atoms[i].Offset > start {
		return atoms[i].Offset, true
	}
	return start, false
}

//Chunk cuts a stream into pieces of at most max bytes, each ending on a valid split point.
//The chunks share memory with buf.
func Chunk(buf []byte, max int, opts Options) ([][]byte, error) {
	if max <= 0 {
		return nil, errors.Wrapf(ErrInvalidSplit, "chunk size %d", max)
	}
	atoms, err := Lex(buf, opts)
	if err != nil {
		return nil, err
	}
	var chunks [][]byte
	for start := 0; start < len(buf); {
		p, ok := nextSplit(atoms, len(buf), start, max)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidSplit, "offset %d: no split point within %d bytes", start, max)
		}
		chunks = append(chunks, buf[start:p])
		start = p
	}
	return chunks, nil
}
