package idset

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

//GLOBCNTSize is the width of a GLOBCNT on the wire
const GLOBCNTSize = 6

//maxGLOBCNT is the largest value a GLOBCNT can hold
const maxGLOBCNT = 1<<48 - 1

//GLOBCNT is a 6 byte per-replica counter, ordered byte-wise
type GLOBCNT [GLOBCNTSize]byte

//GLOBCNTFromUint64 packs the low 48 bits of v, most significant byte first
func GLOBCNTFromUint64(v uint64) GLOBCNT {
	var g GLOBCNT
	for i := GLOBCNTSize - 1; i >= 0; i-- {
		g[i] = byte(v)
		v >>= 8
	}
	return g
}

//Uint64 is the numeric value of the counter
func (g GLOBCNT) Uint64() uint64 {
	var v uint64
	for _, b := range g {
		v = v<<8 | uint64(b)
	}
	return v
}

//Compare returns -1, 0 or 1
func (g GLOBCNT) Compare(o GLOBCNT) int {
	return bytes.Compare(g[:], o[:])
}

func (g GLOBCNT) String() string {
	return fmt.Sprintf("0x%012X", g.Uint64())
}

//Range is an inclusive run of counters, Start <= End
type Range struct {
	Start GLOBCNT
	End   GLOBCNT
}

//Singleton is a range holding one value
func Singleton(g GLOBCNT) Range {
	return Range{Start: g, End: g}
}

//Contains reports whether g falls inside the range
func (r Range) Contains(g GLOBCNT) bool {
	return r.Start.Compare(g) <= 0 && g.Compare(r.End) <= 0
}

//Len is the number of counters in the range
func (r Range) Len() uint64 {
	return r.End.Uint64() - r.Start.Uint64() + 1
}

func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + "-" + r.End.String()
}

//GLOBSET is a set of counters for one replica held as ranges.
//A formatted GLOBSET has its ranges sorted, disjoint and coalesced.
type GLOBSET []Range

//FromValues builds a formatted GLOBSET from counters in any order
func FromValues(values ...GLOBCNT) GLOBSET {
	set := make(GLOBSET, 0, len(values))
	for _, v := range values {
		set = append(set, Singleton(v))
	}
	return set.Normalize()
}

//adjacent is true when b starts right after a ends
func adjacent(a, b Range) bool {
	end := a.End.Uint64()
	return end < maxGLOBCNT && end+1 == b.Start.Uint64()
}

//CheckFormatted reports the first formatting rule the set breaks
func (s GLOBSET) CheckFormatted() error {
	for i, r := range s {
		if r.Start.Compare(r.End) > 0 {
			return errors.Wrapf(ErrUnformattedGLOBSET, "range %d: %s is above %s", i, r.Start, r.End)
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		switch {
		case r.Start.Compare(prev.Start) < 0:
			return errors.Wrapf(ErrUnformattedGLOBSET, "range %d (%s) is not sorted", i, r)
		case r.Start.Compare(prev.End) <= 0:
			return errors.Wrapf(ErrUnformattedGLOBSET, "range %d (%s) overlaps %s", i, r, prev)
		case adjacent(prev, r):
			return errors.Wrapf(ErrUnformattedGLOBSET, "range %d (%s) is not coalesced with %s", i, r, prev)
		}
	}
	return nil
}

//Normalize returns the formatted form of the set. Reversed ranges are swapped.
func (s GLOBSET) Normalize() GLOBSET {
	if len(s) == 0 {
		return GLOBSET{}
	}
	sorted := make(GLOBSET, len(s))
	for i, r := range s {
		if r.Start.Compare(r.End) > 0 {
			r.Start, r.End = r.End, r.Start
		}
		sorted[i] = r
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Compare(sorted[j].Start) < 0 })

	out := GLOBSET{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start.Compare(last.End) <= 0 || adjacent(*last, r) {
			if r.End.Compare(last.End) > 0 {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

//Contains reports whether g is in the set. The set must be formatted.
func (s GLOBSET) Contains(g GLOBCNT) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].End.Compare(g) >= 0 })
	return i < len(s) && s[i].Contains(g)
}

//ContainsRange reports whether every value of r is in the set. The set must be formatted.
func (s GLOBSET) ContainsRange(r Range) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].End.Compare(r.Start) >= 0 })
	return i < len(s) && s[i].Contains(r.Start) && s[i].Contains(r.End)
}

//IsSubsetOf reports whether every value of s is also in o. Both sets must be formatted.
func (s GLOBSET) IsSubsetOf(o GLOBSET) bool {
	for _, r := range s {
		if !o.ContainsRange(r) {
			return false
		}
	}
	return true
}

//Union merges two sets and coalesces the result
func (s GLOBSET) Union(o GLOBSET) GLOBSET {
	all := make(GLOBSET, 0, len(s)+len(o))
	all = append(all, s...)
	all = append(all, o...)
	return all.Normalize()
}

//Count is the number of values in the set
func (s GLOBSET) Count() uint64 {
	var n uint64
	for _, r := range s {
		n += r.Len()
	}
	return n
}

//Max is the largest value of a formatted, non empty set
func (s GLOBSET) Max() (GLOBCNT, bool) {
	if len(s) == 0 {
		return GLOBCNT{}, false
	}
	return s[len(s)-1].End, true
}

//Each calls fn for every value in order until fn returns false
func (s GLOBSET) Each(fn func(GLOBCNT) bool) {
	for _, r := range s {
		end := r.End.Uint64()
		for v := r.Start.Uint64(); v <= end; v++ {
			if !fn(GLOBCNTFromUint64(v)) {
				return
			}
		}
	}
}

//Equal compares two sets range by range
func (s GLOBSET) Equal(o GLOBSET) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s GLOBSET) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
