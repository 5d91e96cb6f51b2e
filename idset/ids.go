package idset

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
)

//LongTermIDSize is the wire size of a LongTermID, including the two pad bytes
const LongTermIDSize = 24

//MaxEnumerated bounds how many values IDs and LongTermIDs will list.
//A single Range command can describe 2^48 values, use Contains or ContainsID for large sets.
const MaxEnumerated = 1 << 20

func (s *IDSET) checkEnumerable(what string) error {
	var n uint64
	for _, e := range s.Entries {
		for _, r := range e.Set {
			//stops long before a sum of 48 bit lengths could wrap
			if n += r.Len(); n > MaxEnumerated {
				return errors.Wrapf(ErrTooManyValues, "%s: more than %d values", what, MaxEnumerated)
			}
		}
	}
	return nil
}

//MakeID builds a MID, FID or CN: the REPLID followed by the GLOBCNT, read as a little endian uint64
func MakeID(replid uint16, g GLOBCNT) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint16(b[:2], replid)
	copy(b[2:], g[:])
	return binary.LittleEndian.Uint64(b[:])
}

//SplitID is the inverse of MakeID
func SplitID(id uint64) (uint16, GLOBCNT) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	var g GLOBCNT
	copy(g[:], b[2:])
	return binary.LittleEndian.Uint16(b[:2]), g
}

//FromIDs builds a REPLID form set from MIDs, FIDs or CNs
func FromIDs(ids ...uint64) *IDSET {
	s := New(FormReplID)
	for _, id := range ids {
		replid, g := SplitID(id)
		s.Add(Entry{ReplID: replid}, Singleton(g))
	}
	return s
}

//IDs enumerates a REPLID form set as MIDs, FIDs or CNs in replica then counter order
func (s *IDSET) IDs() ([]uint64, error) {
	if s.Form != FormReplID {
		return nil, errors.Wrapf(ErrFormMismatch, "IDs needs a %s set, have %s", FormReplID, s.Form)
	}
	if err := s.checkEnumerable("IDs"); err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range s.Entries {
		e.Set.Each(func(g GLOBCNT) bool {
			ids = append(ids, MakeID(e.ReplID, g))
			return true
		})
	}
	return ids, nil
}

//LongTermID identifies an object across sessions
type LongTermID struct {
	ReplGUID mapi.GUID
	Counter  GLOBCNT
}

//Marshal writes the GUID, the GLOBCNT and two zero bytes
func (l LongTermID) Marshal() []byte {
	out := make([]byte, 0, LongTermIDSize)
	out = append(out, l.ReplGUID[:]...)
	out = append(out, l.Counter[:]...)
	return append(out, 0x00, 0x00)
}

//Unmarshal reads a LongTermID and returns the number of bytes read
func (l *LongTermID) Unmarshal(buf []byte) (int, error) {
	if len(buf) < LongTermIDSize {
		return 0, errors.Wrapf(ErrTruncated, "LongTermID needs %d bytes, have %d", LongTermIDSize, len(buf))
	}
	copy(l.ReplGUID[:], buf[:16])
	copy(l.Counter[:], buf[16:22])
	return LongTermIDSize, nil
}

//LongTermIDs enumerates a REPLGUID form set, sorted by GUID then counter
func (s *IDSET) LongTermIDs() ([]LongTermID, error) {
	if s.Form != FormReplGUID {
		return nil, errors.Wrapf(ErrFormMismatch, "LongTermIDs needs a %s set, have %s", FormReplGUID, s.Form)
	}
	if err := s.checkEnumerable("LongTermIDs"); err != nil {
		return nil, err
	}
	var out []LongTermID
	for _, e := range s.Entries {
		e.Set.Each(func(g GLOBCNT) bool {
			out = append(out, LongTermID{ReplGUID: e.ReplGUID, Counter: g})
			return true
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].ReplGUID.Compare(out[j].ReplGUID); c != 0 {
			return c < 0
		}
		return out[i].Counter.Compare(out[j].Counter) < 0
	})
	return out, nil
}
