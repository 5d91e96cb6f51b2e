package ics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/fxstream"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/pcl"
)

//Deletions holds the REPLID form sets of a deletions element.
//The sets stay range coded, one range can cover billions of MIDs.
type Deletions struct {
	Deleted         *idset.IDSET
	NoLongerInScope *idset.IDSET
	Expired         *idset.IDSET
}

//Removed reports whether a MID or FID is listed in any of the three sets
func (d *Deletions) Removed(id uint64) bool {
	return d.Deleted.ContainsID(id) || d.NoLongerInScope.ContainsID(id) || d.Expired.ContainsID(id)
}

//ReadStates holds the REPLID form sets of a readStateChanges element
type ReadStates struct {
	Read   *idset.IDSET
	Unread *idset.IDSET
}

//ReadState reports whether a MID was marked read. ok is false when the MID is in neither set.
func (r *ReadStates) ReadState(mid uint64) (read, ok bool) {
	switch {
	case r.Read.ContainsID(mid):
		return true, true
	case r.Unread.ContainsID(mid):
		return false, true
	}
	return false, false
}

//idsetFromProp decodes a REPLID form IDSET property. A missing property is an empty set.
func idsetFromProp(props fxstream.PropList, tag mapi.PropertyTag, opts idset.Options) (*idset.IDSET, error) {
	v, ok := props.Find(tag.PropertyID)
	if !ok {
		return idset.New(idset.FormReplID), nil
	}
	raw, err := v.Bytes()
	if err != nil {
		return nil, errors.Wrapf(err, "property %s", tag)
	}
	set, err := idset.Decode(raw, idset.FormReplID, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "property %s", tag)
	}
	return set, nil
}

//DeletionsFromProps reads the property list of a deletions element
func DeletionsFromProps(props fxstream.PropList, opts idset.Options) (*Deletions, error) {
	var d Deletions
	var err error
	if d.Deleted, err = idsetFromProp(props, mapi.MetaTagIdsetDeleted, opts); err != nil {
		return nil, err
	}
	if d.NoLongerInScope, err = idsetFromProp(props, mapi.MetaTagIdsetNoLongerInScope, opts); err != nil {
		return nil, err
	}
	if d.Expired, err = idsetFromProp(props, mapi.MetaTagIdsetExpired, opts); err != nil {
		return nil, err
	}
	return &d, nil
}

//ReadStatesFromProps reads the property list of a readStateChanges element
func ReadStatesFromProps(props fxstream.PropList, opts idset.Options) (*ReadStates, error) {
	var r ReadStates
	var err error
	if r.Read, err = idsetFromProp(props, mapi.MetaTagIdsetRead, opts); err != nil {
		return nil, err
	}
	if r.Unread, err = idsetFromProp(props, mapi.MetaTagIdsetUnread, opts); err != nil {
		return nil, err
	}
	return &r, nil
}

//ChangeHeader is the header of a message change or the property list of a folder change
type ChangeHeader struct {
	Kind            fxstream.ElementKind
	SourceKey       []byte
	ParentSourceKey []byte
	LastModified    time.Time
	ChangeKey       pcl.XID
	PCL             pcl.PCL
	Associated      bool
	MID             uint64
	FolderID        uint64
	ChangeNumber    uint64
	MessageSize     uint32
	DisplayName     string
}

//HeaderFromProps pulls the change tracking properties out of a header.
//opts decides whether an unsorted PredecessorChangeList is an error.
func HeaderFromProps(kind fxstream.ElementKind, props fxstream.PropList, opts idset.Options) (*ChangeHeader, error) {
	h := &ChangeHeader{Kind: kind}
	for _, v := range props {
		if v.Named != nil {
			continue
		}
		var err error
		switch v.Tag.PropertyID {
		case mapi.PidTagSourceKey.PropertyID:
			h.SourceKey, err = v.Bytes()
		case mapi.PidTagParentSourceKey.PropertyID:
			h.ParentSourceKey, err = v.Bytes()
		case mapi.PidTagLastModificationTime.PropertyID:
			h.LastModified, err = v.Time()
		case mapi.PidTagChangeKey.PropertyID:
			var raw []byte
			if raw, err = v.Bytes(); err == nil {
				h.ChangeKey, err = pcl.ParseXID(raw)
			}
		case mapi.PidTagPredecessorChangeList.PropertyID:
			var raw []byte
			if raw, err = v.Bytes(); err == nil {
				h.PCL, err = pcl.DecodeWith(raw, opts)
			}
		case mapi.PidTagAssociated.PropertyID:
			h.Associated, err = v.Bool()
		case mapi.PidTagMid.PropertyID:
			h.MID, err = v.Uint64()
		case mapi.PidTagFolderID.PropertyID:
			h.FolderID, err = v.Uint64()
		case mapi.PidTagChangeNumber.PropertyID:
			h.ChangeNumber, err = v.Uint64()
		case mapi.PidTagMessageSize.PropertyID:
			h.MessageSize, err = v.Uint32()
		case mapi.PidTagDisplayName.PropertyID:
			h.DisplayName, err = v.Str()
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s property %s", kind, v.Tag)
		}
	}
	return h, nil
}

//Resolution is what a client does with an incoming change
type Resolution struct {
	Relation pcl.Relation
	//Winner is the PCL the stored object ends up with
	Winner pcl.PCL
}

//Resolve compares an incoming change with the PCL of the stored version.
//On a conflict the winner is a merged PCL that is a successor of both.
func Resolve(incoming *ChangeHeader, stored pcl.PCL) (Resolution, error) {
	r := Resolution{Relation: pcl.Compare(incoming.PCL, stored)}
	switch r.Relation {
	case pcl.AIncludesB:
		r.Winner = incoming.PCL
	case pcl.BIncludesA:
		r.Winner = stored
	default:
		merged, err := pcl.Merge(incoming.PCL, stored)
		if err != nil {
			return r, err
		}
		r.Winner = merged
	}
	return r, nil
}

//Summary is the synchronization content of a contentsSync or hierarchySync stream
type Summary struct {
	Type       fxstream.StreamType
	Changes    []*ChangeHeader
	Deletions  *Deletions
	ReadStates *ReadStates
	State      *State
	Violations int
}

//Summarize walks a decoded synchronization stream and decodes the IDSETs and PCLs it carries
func Summarize(tree *fxstream.Tree, opts idset.Options) (*Summary, error) {
	if tree.Type != fxstream.ContentsSync && tree.Type != fxstream.HierarchySync && tree.Type != fxstream.State {
		return nil, errors.Wrapf(fxstream.ErrUnknownStreamType, "%s is not a synchronization stream", tree.Type)
	}
	s := &Summary{Type: tree.Type, Violations: len(tree.Violations)}
	if tree.Type == fxstream.State {
		st, err := StateFromProps(tree.Get(tree.Root).Props, opts)
		if err != nil {
			return nil, err
		}
		s.State = st
		return s, nil
	}
	for _, idx := range tree.Get(tree.Root).Children {
		el := tree.Get(idx)
		var err error
		switch el.Kind {
		case fxstream.KindMessageChange, fxstream.KindMessageChangePartial, fxstream.KindFolderChange:
			var h *ChangeHeader
			if h, err = HeaderFromProps(el.Kind, el.Props, opts); err == nil {
				s.Changes = append(s.Changes, h)
			}
		case fxstream.KindDeletions:
			s.Deletions, err = DeletionsFromProps(el.Props, opts)
		case fxstream.KindReadStateChanges:
			s.ReadStates, err = ReadStatesFromProps(el.Props, opts)
		case fxstream.KindState:
			s.State, err = StateFromProps(el.Props, opts)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "element %d (%s)", idx, el.Kind)
		}
	}
	return s, nil
}
