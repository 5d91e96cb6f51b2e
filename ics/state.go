package ics

import (
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/fxstream"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/mapi"
)

//State is the ICS synchronization state a client keeps between sessions.
//All four sets are in REPLGUID form.
type State struct {
	IdsetGiven   *idset.IDSET
	CnsetSeen    *idset.IDSET
	CnsetSeenFAI *idset.IDSET
	CnsetRead    *idset.IDSET
}

//NewState returns a state with four empty sets, the state of a first synchronization
func NewState() *State {
	return &State{
		IdsetGiven:   idset.New(idset.FormReplGUID),
		CnsetSeen:    idset.New(idset.FormReplGUID),
		CnsetSeenFAI: idset.New(idset.FormReplGUID),
		CnsetRead:    idset.New(idset.FormReplGUID),
	}
}

type stateField struct {
	tag mapi.PropertyTag
	set func(*State) **idset.IDSET
}

var stateFields = []stateField{
	{mapi.MetaTagIdsetGiven, func(s *State) **idset.IDSET { return &s.IdsetGiven }},
	{mapi.MetaTagCnsetSeen, func(s *State) **idset.IDSET { return &s.CnsetSeen }},
	{mapi.MetaTagCnsetSeenFAI, func(s *State) **idset.IDSET { return &s.CnsetSeenFAI }},
	{mapi.MetaTagCnsetRead, func(s *State) **idset.IDSET { return &s.CnsetRead }},
}

//StateFromProps reads the property list of a state element. Missing sets are empty.
func StateFromProps(props fxstream.PropList, opts idset.Options) (*State, error) {
	s := NewState()
	for _, f := range stateFields {
		v, ok := props.Find(f.tag.PropertyID)
		if !ok {
			continue
		}
		raw, err := v.Bytes()
		if err != nil {
			return nil, errors.Wrapf(err, "state property %s", f.tag)
		}
		set, err := idset.Decode(raw, idset.FormReplGUID, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "state property %s", f.tag)
		}
		*f.set(s) = set
	}
	return s, nil
}

//ParseState decodes a state stream, as stored by a Store or returned by RopSynchronizationGetTransferState
func ParseState(buf []byte, fxOpts fxstream.Options, opts idset.Options) (*State, error) {
	tree, err := fxstream.Decode(buf, fxstream.State, fxOpts)
	if err != nil {
		return nil, err
	}
	return StateFromProps(tree.Get(tree.Root).Props, opts)
}

//PropList serializes the state in the order the server sends it
func (s *State) PropList() (fxstream.PropList, error) {
	var props fxstream.PropList
	for _, f := range stateFields {
		set := *f.set(s)
		if set == nil {
			set = idset.New(idset.FormReplGUID)
		}
		if set.Form != idset.FormReplGUID {
			return nil, errors.Wrapf(ErrTransientForm, "state property %s", f.tag)
		}
		raw, err := set.Encode()
		if err != nil {
			return nil, errors.Wrapf(err, "state property %s", f.tag)
		}
		//zero length values are not allowed in a stream, an empty IDSET is left out
		if len(raw) == 0 {
			continue
		}
		props = append(props, fxstream.BinaryValue(f.tag, raw))
	}
	return props, nil
}

//Stream serializes the state as a state stream
func (s *State) Stream() ([]byte, error) {
	props, err := s.PropList()
	if err != nil {
		return nil, err
	}
	tree, err := fxstream.NewTree(fxstream.State)
	if err != nil {
		return nil, err
	}
	tree.Get(tree.Root).Props = props
	return fxstream.Encode(tree)
}

//Merge folds a newer state into s. The change number sets are united,
//IdsetGiven is replaced since the server sends it whole and it is enumerated value by value.
func (s *State) Merge(newer *State) error {
	out := *s
	pairs := []struct {
		dst **idset.IDSET
		src *idset.IDSET
	}{
		{&out.CnsetSeen, newer.CnsetSeen},
		{&out.CnsetSeenFAI, newer.CnsetSeenFAI},
		{&out.CnsetRead, newer.CnsetRead},
	}
	for _, p := range pairs {
		if p.src == nil {
			continue
		}
		if *p.dst == nil {
			*p.dst = p.src.Clone()
			continue
		}
		m, err := idset.Merge(*p.dst, p.src)
		if err != nil {
			return err
		}
		*p.dst = m
	}
	if newer.IdsetGiven != nil {
		out.IdsetGiven = newer.IdsetGiven.Clone()
	}
	*s = out
	return nil
}

func orEmpty(set *idset.IDSET) *idset.IDSET {
	if set == nil {
		return idset.New(idset.FormReplGUID)
	}
	return set
}

//Covers reports whether every change number recorded in o is also recorded in s,
//meaning s is the same as or newer than o
func (s *State) Covers(o *State) bool {
	return orEmpty(o.CnsetSeen).IsSubsetOf(orEmpty(s.CnsetSeen)) &&
		orEmpty(o.CnsetSeenFAI).IsSubsetOf(orEmpty(s.CnsetSeenFAI)) &&
		orEmpty(o.CnsetRead).IsSubsetOf(orEmpty(s.CnsetRead))
}

//SameCnsets reports whether both states have seen exactly the same changes
func (s *State) SameCnsets(o *State) bool {
	return s.Covers(o) && o.Covers(s)
}
