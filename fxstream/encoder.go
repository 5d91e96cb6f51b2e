package fxstream

import (
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
)

type encoder struct {
	tree *Tree
	buf  []byte
}

//Encode serializes a tree back to a FastTransfer stream.
//Schema rules are not checked, a tree decoded leniently encodes to the same bytes.
func Encode(t *Tree) ([]byte, error) {
	if t == nil || t.Root < 0 || t.Root >= len(t.Elements) {
		return nil, errors.New("encode: tree has no root element")
	}
	if want, ok := rootKinds[t.Type]; !ok || t.Elements[t.Root].Kind != want {
		return nil, errors.Wrapf(ErrUnknownStreamType, "encode: root %s for stream type %s", t.Elements[t.Root].Kind, t.Type)
	}
	e := &encoder{tree: t}
	if err := e.element(t.Root); err != nil {
		return nil, err
	}
	return e.buf, nil
}

func (e *encoder) marker(m uint32) {
	e.buf = appendUint32(e.buf, m)
}

func (e *encoder) props(pl PropList) error {
	for _, p := range pl {
		var err error
		if e.buf, err = appendPropValue(e.buf, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) meta(el *Element) error {
	if el.Meta == nil {
		return errors.Errorf("encode: %s element without its meta-property", el.Kind)
	}
	return e.props(PropList{*el.Meta})
}

func (e *encoder) children(idx int) error {
	for _, c := range e.tree.Elements[idx].Children {
		if err := e.element(c); err != nil {
			return err
		}
	}
	return nil
}

//wrapped writes start, the element's properties and children, then end
func (e *encoder) wrapped(idx int, start, end uint32) error {
	e.marker(start)
	if err := e.props(e.tree.Elements[idx].Props); err != nil {
		return err
	}
	if err := e.children(idx); err != nil {
		return err
	}
	if end != 0 {
		e.marker(end)
	}
	return nil
}

func (e *encoder) element(idx int) error {
	el := &e.tree.Elements[idx]
	switch el.Kind {
	case KindFolderContent, KindMessageContent, KindAttachmentContent:
		if err := e.props(el.Props); err != nil {
			return err
		}
		return e.children(idx)
	case KindMessageList:
		return e.children(idx)
	case KindTopFolder:
		return e.wrapped(idx, mapi.StartTopFld, mapi.EndFolder)
	case KindSubFolder:
		return e.wrapped(idx, mapi.StartSubFld, mapi.EndFolder)
	case KindMessage:
		return e.wrapped(idx, mapi.StartMessage, mapi.EndMessage)
	case KindFAIMessage:
		return e.wrapped(idx, mapi.StartFAIMsg, mapi.EndMessage)
	case KindRecipient:
		return e.wrapped(idx, mapi.StartRecip, mapi.EndToRecip)
	case KindAttachment:
		return e.wrapped(idx, mapi.NewAttach, mapi.EndAttach)
	case KindEmbeddedMessage:
		return e.wrapped(idx, mapi.StartEmbed, mapi.EndEmbed)
	case KindErrorInfo:
		return e.wrapped(idx, mapi.FXErrorInfo, 0)
	case KindProgressTotal:
		return e.wrapped(idx, mapi.IncrSyncProgressMode, 0)
	case KindProgressPerMessage:
		return e.wrapped(idx, mapi.IncrSyncProgressPerMsg, 0)
	case KindGroupInfo:
		return e.wrapped(idx, mapi.IncrSyncGroupInfo, 0)
	case KindDeletions:
		return e.wrapped(idx, mapi.IncrSyncDel, 0)
	case KindReadStateChanges:
		return e.wrapped(idx, mapi.IncrSyncRead, 0)
	case KindFolderChange:
		return e.wrapped(idx, mapi.IncrSyncChg, 0)
	case KindState:
		return e.wrapped(idx, mapi.IncrSyncStateBegin, mapi.IncrSyncStateEnd)
	case KindContentsSync, KindHierarchySync:
		if err := e.children(idx); err != nil {
			return err
		}
		e.marker(mapi.IncrSyncEnd)
		return nil
	case KindMetaProperty:
		return e.meta(el)
	case KindMessagePartial:
		if err := e.meta(el); err != nil {
			return err
		}
		return e.props(el.Props)
	case KindMessageChange:
		e.marker(mapi.IncrSyncChg)
		if err := e.props(el.Props); err != nil {
			return err
		}
		e.marker(mapi.IncrSyncMessage)
		return e.children(idx)
	case KindMessageChangePartial:
		return e.messageChangePartial(idx)
	}
	return errors.Errorf("encode: unknown element kind %d", el.Kind)
}

func (e *encoder) messageChangePartial(idx int) error {
	el := e.tree.Elements[idx]
	if len(el.Children) == 0 || e.tree.Elements[el.Children[0]].Kind != KindGroupInfo {
		return errors.New("encode: messageChangePartial must start with groupInfo")
	}
	if err := e.element(el.Children[0]); err != nil {
		return err
	}
	if el.Meta != nil {
		if err := e.props(PropList{*el.Meta}); err != nil {
			return err
		}
	}
	e.marker(mapi.IncrSyncChgPartial)
	if err := e.props(el.Props); err != nil {
		return err
	}
	for _, c := range el.Children[1:] {
		if err := e.element(c); err != nil {
			return err
		}
	}
	return nil
}
