package pcl

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/utils"
	"go.uber.org/zap"
)

//XID sizes
const (
	MinXIDSize = 17
	MaxXIDSize = 24
)

var (
	//ErrInvalidXID an XID of the wrong size, or XIDs of one namespace with different LocalID lengths
	ErrInvalidXID = errors.New("invalid XID")
	//ErrTruncated the buffer ends inside a SizedXid
	ErrTruncated = errors.New("truncated PredecessorChangeList")
	//ErrUnsorted the SizedXid entries are not in namespace order
	ErrUnsorted = errors.New("PredecessorChangeList not sorted by namespace")
)

//XID identifies a change: a namespace GUID and a 1 to 8 byte local id
type XID struct {
	Namespace mapi.GUID
	LocalID   []byte
}

//ParseXID reads an XID that fills b, as found in PidTagChangeKey
func ParseXID(b []byte) (XID, error) {
	var x XID
	if len(b) < MinXIDSize || len(b) > MaxXIDSize {
		return x, errors.Wrapf(ErrInvalidXID, "%d bytes", len(b))
	}
	copy(x.Namespace[:], b[:16])
	x.LocalID = append([]byte(nil), b[16:]...)
	return x, nil
}

//Size of the XID on the wire
func (x XID) Size() int {
	return 16 + len(x.LocalID)
}

//Marshal writes the namespace followed by the local id
func (x XID) Marshal() []byte {
	out := make([]byte, 0, x.Size())
	out = append(out, x.Namespace[:]...)
	return append(out, x.LocalID...)
}

func (x XID) String() string {
	return fmt.Sprintf("%s:%X", x.Namespace, x.LocalID)
}

//compareLocal orders local ids as unsigned big endian numbers
func compareLocal(a, b []byte) int {
	a = bytes.TrimLeft(a, "\x00")
	b = bytes.TrimLeft(b, "\x00")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

//PCL is a PredecessorChangeList
type PCL []XID

//Decode reads SizedXid entries until the end of buf and rejects lists that are not sorted by namespace
func Decode(buf []byte) (PCL, error) {
	return DecodeWith(buf, idset.DefaultOptions())
}

//DecodeWith reads SizedXid entries until the end of buf.
//Lenient options sort an unsorted list and log a warning instead of failing with ErrUnsorted.
func DecodeWith(buf []byte, opts idset.Options) (PCL, error) {
	var p PCL
	unsorted := -1
	pos := 0
	for pos < len(buf) {
		size, next, err := utils.ReadByte(pos, buf)
		if err != nil {
			return nil, errors.Wrapf(ErrTruncated, "offset %d", pos)
		}
		if size < MinXIDSize || size > MaxXIDSize {
			return nil, errors.Wrapf(ErrInvalidXID, "offset %d: size %d", pos, size)
		}
		raw, next, err := utils.ReadBytes(next, int(size), buf)
		if err != nil {
			return nil, errors.Wrapf(ErrTruncated, "offset %d: %d byte XID", pos, size)
		}
		x, _ := ParseXID(raw)
		//repeated namespaces are fine, going backwards is not
		if unsorted < 0 && len(p) > 0 && x.Namespace.Compare(p[len(p)-1].Namespace) < 0 {
			unsorted = pos
		}
		p = append(p, x)
		pos = next
	}
	if unsorted >= 0 {
		if opts.Strict {
			return nil, errors.Wrapf(ErrUnsorted, "offset %d", unsorted)
		}
		if opts.Logger != nil {
			opts.Logger.Warn("re-sorting PredecessorChangeList", zap.Int("offset", unsorted), zap.Int("xids", len(p)))
		}
		p.sort()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p PCL) sort() {
	sort.SliceStable(p, func(i, j int) bool {
		return p[i].Namespace.Compare(p[j].Namespace) < 0
	})
}

//Validate checks XID sizes and that every namespace uses one LocalID length
func (p PCL) Validate() error {
	lengths := map[mapi.GUID]int{}
	for _, x := range p {
		if x.Size() < MinXIDSize || x.Size() > MaxXIDSize {
			return errors.Wrapf(ErrInvalidXID, "%s: %d bytes", x, x.Size())
		}
		if n, ok := lengths[x.Namespace]; ok && n != len(x.LocalID) {
			return errors.Wrapf(ErrInvalidXID, "namespace %s mixes %d and %d byte local ids", x.Namespace, n, len(x.LocalID))
		}
		lengths[x.Namespace] = len(x.LocalID)
	}
	return nil
}

//Encode writes the list as SizedXid entries sorted by namespace
func (p PCL) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sorted := append(PCL(nil), p...)
	sorted.sort()
	var out []byte
	for _, x := range sorted {
		out = append(out, byte(x.Size()))
		out = append(out, x.Marshal()...)
	}
	return out, nil
}

//heads returns the highest local id recorded for every namespace
func (p PCL) heads() map[mapi.GUID][]byte {
	h := make(map[mapi.GUID][]byte, len(p))
	for _, x := range p {
		if cur, ok := h[x.Namespace]; !ok || compareLocal(x.LocalID, cur) > 0 {
			h[x.Namespace] = x.LocalID
		}
	}
	return h
}

//Includes reports whether a records every change that b records
func Includes(a, b PCL) bool {
	ha := a.heads()
	for ns, local := range b.heads() {
		have, ok := ha[ns]
		if !ok || compareLocal(have, local) < 0 {
			return false
		}
	}
	return true
}

//Relation is the outcome of comparing an incoming PCL against a stored one
type Relation int

//Relations
const (
	//AIncludesB the incoming version is newer and replaces the stored one
	AIncludesB Relation = iota
	//BIncludesA the incoming version is older or the same and is ignored
	BIncludesA
	//Conflict neither version includes the other
	Conflict
)

func (r Relation) String() string {
	switch r {
	case AIncludesB:
		return "AIncludesB"
	case BIncludesA:
		return "BIncludesA"
	case Conflict:
		return "Conflict"
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

//Compare classifies PCL a (incoming) against PCL b (stored). Equal lists are BIncludesA.
func Compare(a, b PCL) Relation {
	switch {
	case Includes(b, a):
		return BIncludesA
	case Includes(a, b):
		return AIncludesB
	}
	return Conflict
}

//Merge builds a PCL that includes both a and b, keeping the highest XID of each namespace
func Merge(a, b PCL) (PCL, error) {
	all := make(PCL, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	if err := all.Validate(); err != nil {
		return nil, err
	}
	return all.Compact(), nil
}

//Compact keeps only the highest XID of each namespace, sorted by namespace
func (p PCL) Compact() PCL {
	heads := p.heads()
	out := make(PCL, 0, len(heads))
	for ns, local := range heads {
		out = append(out, XID{Namespace: ns, LocalID: append([]byte(nil), local...)})
	}
	out.sort()
	return out
}

func (p PCL) String() string {
	parts := make([]string, len(p))
	for i, x := range p {
		parts[i] = x.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

//CN is a change number: a replica id and a 48 bit counter
type CN struct {
	ReplicaID uint16
	Counter   idset.GLOBCNT
}

//ParseCN splits a PidTagChangeNumber value
func ParseCN(v uint64) CN {
	replid, counter := idset.SplitID(v)
	return CN{ReplicaID: replid, Counter: counter}
}

//Uint64 is the PidTagChangeNumber form of the change number
func (c CN) Uint64() uint64 {
	return idset.MakeID(c.ReplicaID, c.Counter)
}

//XID pairs the counter with the REPLGUID of its replica, the form used in change keys
func (c CN) XID(replGUID mapi.GUID) XID {
	return XID{Namespace: replGUID, LocalID: append([]byte(nil), c.Counter[:]...)}
}

//ChangeNumber reads a 6 byte local id back into a counter for the given replica
func (x XID) ChangeNumber(replid uint16) (CN, error) {
	if len(x.LocalID) != idset.GLOBCNTSize {
		return CN{}, errors.Wrapf(ErrInvalidXID, "%d byte local id is not a GLOBCNT", len(x.LocalID))
	}
	c := CN{ReplicaID: replid}
	copy(c.Counter[:], x.LocalID)
	return c, nil
}
