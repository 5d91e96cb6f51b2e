package idset

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/utils"
	"go.uber.org/zap"
)

//Form selects how replicas are identified in a serialized IDSET
type Form int

//IDSET forms. REPLGUID is the persisted form used in ICS state,
//REPLID is the transient form used for deletion and read state lists.
const (
	FormReplGUID Form = iota
	FormReplID
)

func (f Form) String() string {
	switch f {
	case FormReplGUID:
		return "REPLGUID"
	case FormReplID:
		return "REPLID"
	}
	return fmt.Sprintf("Form(%d)", int(f))
}

//ParseForm accepts the names printed by Form.String, case insensitive
func ParseForm(s string) (Form, error) {
	switch strings.ToUpper(s) {
	case "REPLGUID", "GUID":
		return FormReplGUID, nil
	case "REPLID", "ID":
		return FormReplID, nil
	}
	return 0, errors.Errorf("unknown IDSET form %q", s)
}

//Entry is the GLOBSET of one replica. Only the identifier matching the IDSET form is used.
type Entry struct {
	ReplID   uint16
	ReplGUID mapi.GUID
	Set      GLOBSET
}

//IDSET holds one GLOBSET per replica, sorted by the wire bytes of the replica identifier
type IDSET struct {
	Form    Form
	Entries []Entry
	//Reordered is set when a lenient decode had to sort or merge the replicas
	Reordered bool
}

//New returns an empty IDSET
func New(form Form) *IDSET {
	return &IDSET{Form: form}
}

//key is the replica identifier as it appears on the wire
func (s *IDSET) key(e Entry) []byte {
	if s.Form == FormReplID {
		b := make([]byte, 2)
		utils.PutUint16(b, e.ReplID)
		return b
	}
	return append([]byte(nil), e.ReplGUID[:]...)
}

func (s *IDSET) keyString(e Entry) string {
	if s.Form == FormReplID {
		return fmt.Sprintf("0x%04X", e.ReplID)
	}
	return e.ReplGUID.String()
}

//Decode reads REPLID or REPLGUID / GLOBSET pairs until the end of buf
func Decode(buf []byte, form Form, opts Options) (*IDSET, error) {
	opts = opts.normalize()
	s := New(form)
	keySize := 16
	if form == FormReplID {
		keySize = 2
	} else if form != FormReplGUID {
		return nil, errors.Errorf("unknown IDSET form %d", form)
	}

	var prev []byte
	pos := 0
	for pos < len(buf) {
		start := pos
		k, next, err := utils.ReadBytes(pos, keySize, buf)
		if err != nil {
			return nil, truncated(pos)
		}
		var e Entry
		if form == FormReplID {
			e.ReplID, _, _ = utils.ReadUint16(pos, buf)
		} else {
			copy(e.ReplGUID[:], k)
		}
		if e.Set, pos, err = DecodeGLOBSET(buf, next, opts); err != nil {
			return nil, errors.Wrapf(err, "replica %s", s.keyString(e))
		}
		if prev != nil && bytes.Compare(prev, k) >= 0 {
			uerr := &UnorderedReplicaError{Index: len(s.Entries), Previous: s.keyString(s.Entries[len(s.Entries)-1]), Current: s.keyString(e)}
			if opts.Strict {
				return nil, uerr
			}
			opts.Logger.Warn("re-sorting IDSET replicas", zap.Int("offset", start), zap.Error(uerr))
			s.Reordered = true
		}
		prev = k
		s.Entries = append(s.Entries, e)
	}
	if s.Reordered {
		s.sortEntries()
	}
	return s, nil
}

//sortEntries orders the replicas and merges duplicates
func (s *IDSET) sortEntries() {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return bytes.Compare(s.key(s.Entries[i]), s.key(s.Entries[j])) < 0
	})
	out := s.Entries[:0]
	for _, e := range s.Entries {
		if n := len(out); n > 0 && bytes.Equal(s.key(out[n-1]), s.key(e)) {
			out[n-1].Set = out[n-1].Set.Union(e.Set)
			continue
		}
		out = append(out, e)
	}
	s.Entries = out
}

//Normalize sorts the replicas, merges duplicate replicas and formats every GLOBSET
func (s *IDSET) Normalize() {
	for i := range s.Entries {
		s.Entries[i].Set = s.Entries[i].Set.Normalize()
	}
	s.sortEntries()
}

//Encode serializes the set. Replicas must be in ascending order with formatted GLOBSETs.
func (s *IDSET) Encode() ([]byte, error) {
	var out []byte
	var prev []byte
	for i, e := range s.Entries {
		k := s.key(e)
		if prev != nil && bytes.Compare(prev, k) >= 0 {
			return nil, &UnorderedReplicaError{Index: i, Previous: s.keyString(s.Entries[i-1]), Current: s.keyString(e)}
		}
		prev = k
		out = append(out, k...)
		var err error
		if out, err = AppendGLOBSET(out, e.Set); err != nil {
			return nil, errors.Wrapf(err, "replica %s", s.keyString(e))
		}
	}
	return out, nil
}

//Clone deep copies the set
func (s *IDSET) Clone() *IDSET {
	c := &IDSET{Form: s.Form, Reordered: s.Reordered, Entries: make([]Entry, len(s.Entries))}
	for i, e := range s.Entries {
		e.Set = append(GLOBSET{}, e.Set...)
		c.Entries[i] = e
	}
	return c
}

func (s *IDSET) find(e Entry) (int, bool) {
	k := s.key(e)
	i := sort.Search(len(s.Entries), func(i int) bool { return bytes.Compare(s.key(s.Entries[i]), k) >= 0 })
	return i, i < len(s.Entries) && bytes.Equal(s.key(s.Entries[i]), k)
}

//SetFor returns the GLOBSET stored for the replica of e
func (s *IDSET) SetFor(e Entry) GLOBSET {
	if i, ok := s.find(e); ok {
		return s.Entries[i].Set
	}
	return nil
}

//Add puts a range into the GLOBSET of the replica of e, keeping the set sorted and formatted
func (s *IDSET) Add(e Entry, r Range) {
	i, ok := s.find(e)
	if ok {
		s.Entries[i].Set = s.Entries[i].Set.Union(GLOBSET{r})
		return
	}
	e.Set = GLOBSET{r}.Normalize()
	s.Entries = append(s.Entries, Entry{})
	copy(s.Entries[i+1:], s.Entries[i:])
	s.Entries[i] = e
}

//Contains reports whether the REPLGUID form set holds g for the replica guid
func (s *IDSET) Contains(guid mapi.GUID, g GLOBCNT) bool {
	if s.Form != FormReplGUID {
		return false
	}
	return s.SetFor(Entry{ReplGUID: guid}).Contains(g)
}

//ContainsID reports whether the REPLID form set holds a MID, FID or CN
func (s *IDSET) ContainsID(id uint64) bool {
	if s.Form != FormReplID {
		return false
	}
	replid, g := SplitID(id)
	return s.SetFor(Entry{ReplID: replid}).Contains(g)
}

//IsSubsetOf reports whether every value of s is in o. Sets of different forms are never subsets.
func (s *IDSET) IsSubsetOf(o *IDSET) bool {
	if s.Form != o.Form {
		return false
	}
	for _, e := range s.Entries {
		if len(e.Set) == 0 {
			continue
		}
		if !e.Set.IsSubsetOf(o.SetFor(e)) {
			return false
		}
	}
	return true
}

//Merge returns the union of two sets of the same form, coalesced into minimal ranges.
//IDSETs that are enumerated value by value, like MetaTagIdsetGiven, should not be merged this way.
func Merge(a, b *IDSET) (*IDSET, error) {
	if a.Form != b.Form {
		return nil, errors.Wrapf(ErrFormMismatch, "%s and %s", a.Form, b.Form)
	}
	out := a.Clone()
	out.Reordered = false
	for _, e := range b.Entries {
		for _, r := range e.Set {
			out.Add(e, r)
		}
	}
	return out, nil
}

//Equal compares replicas and ranges
func (s *IDSET) Equal(o *IDSET) bool {
	if s.Form != o.Form || len(s.Entries) != len(o.Entries) {
		return false
	}
	for i := range s.Entries {
		if !bytes.Equal(s.key(s.Entries[i]), o.key(o.Entries[i])) || !s.Entries[i].Set.Equal(o.Entries[i].Set) {
			return false
		}
	}
	return true
}

//Count is the number of values over all replicas
func (s *IDSET) Count() uint64 {
	var n uint64
	for _, e := range s.Entries {
		n += e.Set.Count()
	}
	return n
}

//Empty is true when no replica holds a value
func (s *IDSET) Empty() bool {
	return s.Count() == 0
}

func (s *IDSET) String() string {
	var b strings.Builder
	b.WriteString(s.Form.String())
	for _, e := range s.Entries {
		fmt.Fprintf(&b, " %s:%s", s.keyString(e), e.Set)
	}
	return b.String()
}
