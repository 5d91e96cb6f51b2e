package fxstream

import (
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/utils"
	"go.uber.org/zap"
)

type decoder struct {
	lexer
	tree  *Tree
	pos   int
	depth int
}

//Decode parses buf as a stream of the given type. On error no tree is returned.
func Decode(buf []byte, st StreamType, opts Options) (*Tree, error) {
	opts = opts.normalize()
	tree, err := NewTree(st)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, truncated(0)
	}
	d := &decoder{lexer: lexer{buf: buf, opts: opts}, tree: tree}

	root := tree.Root
	switch st {
	case ContentsSync:
		err = d.contentsSync(root)
	case HierarchySync:
		err = d.hierarchySync(root)
	case State:
		err = d.stateBody(root)
	case FolderContent:
		err = d.folderContent(root)
	case MessageContent:
		err = d.messageContent(root)
	case AttachmentContent:
		err = d.attachmentContent(root)
	case MessageList:
		err = d.messageList(root)
	case TopFolder:
		err = d.topFolder(root)
	}
	if err != nil {
		return nil, err
	}
	if d.pos != len(buf) {
		v, _, err := d.peek()
		if err != nil {
			return nil, err
		}
		return nil, d.unexpected(v)
	}
	opts.Logger.Debug("decoded stream",
		zap.Stringer("type", st),
		zap.Int("bytes", len(buf)),
		zap.Int("elements", len(tree.Elements)),
		zap.Int("violations", len(tree.Violations)))
	return tree, nil
}

//peek returns the next 4 bytes. ok is false at the end of the buffer.
func (d *decoder) peek() (v uint32, ok bool, err error) {
	if d.pos == len(d.buf) {
		return 0, false, nil
	}
	if v, err = utils.PeekUint32(d.pos, d.buf); err != nil {
		return 0, false, truncated(d.pos)
	}
	return v, true, nil
}

//next is peek for places where the end of the buffer is itself an error
func (d *decoder) next() (uint32, error) {
	v, ok, err := d.peek()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, truncated(d.pos)
	}
	return v, nil
}

func (d *decoder) unexpected(v uint32) error {
	name := mapi.MarkerName(v)
	if name == "" {
		name = "property " + mapi.TagFromUint32(v).String()
	}
	return errors.Wrapf(ErrUnexpectedMarker, "offset %d: 0x%08X (%s)", d.pos, v, name)
}

func (d *decoder) expect(marker uint32) error {
	v, err := d.next()
	if err != nil {
		return err
	}
	if v != marker {
		return errors.Wrapf(d.unexpected(v), "expected %s", mapi.MarkerName(marker))
	}
	d.lexer.emit(AtomMarker, d.pos, 4)
	d.pos += 4
	return nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > d.opts.MaxDepth {
		return errors.Wrapf(ErrDepthExceeded, "offset %d: depth %d", d.pos, d.depth)
	}
	return nil
}

func (d *decoder) leave() {
	d.depth--
}

//propList reads properties up to the next marker, delimiting meta-property or the end of the buffer
func (d *decoder) propList() (PropList, error) {
	var props PropList
	for {
		v, ok, err := d.peek()
		if err != nil {
			return nil, err
		}
		if !ok || mapi.IsMarker(v) || mapi.IsDelimiter(v) {
			return props, nil
		}
		pv, next, err := d.propValue(d.pos)
		if err != nil {
			return nil, err
		}
		props = append(props, pv)
		d.pos = next
	}
}

func (d *decoder) metaProperty() (PropValue, error) {
	pv, next, err := d.propValue(d.pos)
	if err != nil {
		return pv, err
	}
	d.pos = next
	return pv, nil
}

func (d *decoder) check(kind ElementKind, props PropList, offset int) error {
	v := checkElement(kind, props)
	if v == nil {
		return nil
	}
	v.Offset = offset
	return d.violate(v)
}

//violate fails the decode in strict mode, otherwise the violation is kept on the tree
func (d *decoder) violate(v *SchemaViolation) error {
	if d.opts.Strict {
		return v
	}
	d.opts.Logger.Warn("schema violation",
		zap.String("element", v.Element),
		zap.Uint16("property", v.PropertyID),
		zap.String("reason", v.Reason),
		zap.Int("offset", v.Offset))
	d.tree.Violations = append(d.tree.Violations, *v)
	return nil
}

//single reads an element made of a marker followed by one property list
func (d *decoder) single(parent int, kind ElementKind, marker uint32) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	offset := d.pos
	if err := d.expect(marker); err != nil {
		return err
	}
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Add(parent, kind, props)
	return d.check(kind, props, offset)
}

func (d *decoder) folderContent(idx int) error {
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Elements[idx].Props = props
	for {
		v, ok, err := d.peek()
		if err != nil || !ok {
			return err
		}
		switch v {
		case mapi.MetaTagEcWarning.Uint32(), mapi.MetaTagFXDelProp.Uint32(), mapi.MetaTagNewFXFolder.Uint32():
			err = d.meta(idx)
		case mapi.StartMessage, mapi.StartFAIMsg:
			err = d.message(idx)
		case mapi.StartSubFld:
			err = d.subFolder(idx)
		case mapi.FXErrorInfo:
			err = d.errorInfo(idx)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *decoder) meta(parent int) error {
	pv, err := d.metaProperty()
	if err != nil {
		return err
	}
	d.tree.AddMeta(parent, KindMetaProperty, pv, nil)
	return nil
}

func (d *decoder) topFolder(idx int) error {
	if err := d.expect(mapi.StartTopFld); err != nil {
		return err
	}
	if err := d.folderContent(idx); err != nil {
		return err
	}
	return d.expect(mapi.EndFolder)
}

func (d *decoder) subFolder(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	idx := d.tree.Add(parent, KindSubFolder, nil)
	if err := d.expect(mapi.StartSubFld); err != nil {
		return err
	}
	if err := d.folderContent(idx); err != nil {
		return err
	}
	return d.expect(mapi.EndFolder)
}

func (d *decoder) errorInfo(parent int) error {
	return d.single(parent, KindErrorInfo, mapi.FXErrorInfo)
}

func (d *decoder) message(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	v, err := d.next()
	if err != nil {
		return err
	}
	kind := KindMessage
	if v == mapi.StartFAIMsg {
		kind = KindFAIMessage
	}
	idx := d.tree.Add(parent, kind, nil)
	if err := d.expect(v); err != nil {
		return err
	}
	if err := d.messageContent(idx); err != nil {
		return err
	}
	return d.expect(mapi.EndMessage)
}

func (d *decoder) messageContent(idx int) error {
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Elements[idx].Props = props
	return d.messageChildren(idx)
}

func (d *decoder) messageChildren(idx int) error {
	for {
		v, ok, err := d.peek()
		if err != nil || !ok {
			return err
		}
		switch v {
		case mapi.MetaTagFXDelProp.Uint32():
			err = d.meta(idx)
		case mapi.StartRecip:
			err = d.recipient(idx)
		case mapi.NewAttach:
			err = d.attachment(idx)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *decoder) recipient(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	if err := d.expect(mapi.StartRecip); err != nil {
		return err
	}
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Add(parent, KindRecipient, props)
	return d.expect(mapi.EndToRecip)
}

func (d *decoder) attachment(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	idx := d.tree.Add(parent, KindAttachment, nil)
	if err := d.expect(mapi.NewAttach); err != nil {
		return err
	}
	if err := d.attachmentContent(idx); err != nil {
		return err
	}
	return d.expect(mapi.EndAttach)
}

func (d *decoder) attachmentContent(idx int) error {
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Elements[idx].Props = props
	v, ok, err := d.peek()
	if err != nil || !ok || v != mapi.StartEmbed {
		return err
	}
	return d.embeddedMessage(idx)
}

func (d *decoder) embeddedMessage(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	idx := d.tree.Add(parent, KindEmbeddedMessage, nil)
	if err := d.expect(mapi.StartEmbed); err != nil {
		return err
	}
	if err := d.messageContent(idx); err != nil {
		return err
	}
	return d.expect(mapi.EndEmbed)
}

func (d *decoder) messageList(idx int) error {
	messages := 0
	offset := d.pos
	for {
		v, ok, err := d.peek()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch v {
		case mapi.MetaTagEcWarning.Uint32():
			err = d.meta(idx)
		case mapi.StartMessage, mapi.StartFAIMsg:
			messages++
			err = d.message(idx)
		case mapi.FXErrorInfo:
			err = d.errorInfo(idx)
		default:
			return d.unexpected(v)
		}
		if err != nil {
			return err
		}
	}
	if messages == 0 {
		return d.violate(&SchemaViolation{Element: "messageList", Reason: "contains no message", Offset: offset})
	}
	return nil
}

func (d *decoder) contentsSync(idx int) error {
	v, ok, err := d.peek()
	if err != nil {
		return err
	}
	if ok && v == mapi.IncrSyncProgressMode {
		if err := d.single(idx, KindProgressTotal, mapi.IncrSyncProgressMode); err != nil {
			return err
		}
	}
	for {
		v, err := d.next()
		if err != nil {
			return err
		}
		perMessage := v == mapi.IncrSyncProgressPerMsg
		if perMessage {
			if err := d.single(idx, KindProgressPerMessage, mapi.IncrSyncProgressPerMsg); err != nil {
				return err
			}
			if v, err = d.next(); err != nil {
				return err
			}
		}
		if v == mapi.IncrSyncChg {
			err = d.messageChangeFull(idx)
		} else if v == mapi.IncrSyncGroupInfo {
			err = d.messageChangePartial(idx)
		} else if perMessage {
			return errors.Wrap(d.unexpected(v), "progressPerMessage must precede a messageChange")
		} else {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := d.optional(idx, KindDeletions, mapi.IncrSyncDel); err != nil {
		return err
	}
	if err := d.optional(idx, KindReadStateChanges, mapi.IncrSyncRead); err != nil {
		return err
	}
	if err := d.state(idx); err != nil {
		return err
	}
	return d.expect(mapi.IncrSyncEnd)
}

func (d *decoder) optional(parent int, kind ElementKind, marker uint32) error {
	v, ok, err := d.peek()
	if err != nil || !ok || v != marker {
		return err
	}
	return d.single(parent, kind, marker)
}

func (d *decoder) messageChangeFull(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	offset := d.pos
	idx := d.tree.Add(parent, KindMessageChange, nil)
	if err := d.expect(mapi.IncrSyncChg); err != nil {
		return err
	}
	if err := d.header(idx, offset); err != nil {
		return err
	}
	if err := d.expect(mapi.IncrSyncMessage); err != nil {
		return err
	}
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	content := d.tree.Add(idx, KindMessageContent, nil)
	return d.messageContent(content)
}

func (d *decoder) header(idx, offset int) error {
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Elements[idx].Props = props
	return d.check(d.tree.Elements[idx].Kind, props, offset)
}

func (d *decoder) messageChangePartial(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	idx := d.tree.Add(parent, KindMessageChangePartial, nil)
	if err := d.single(idx, KindGroupInfo, mapi.IncrSyncGroupInfo); err != nil {
		return err
	}
	v, err := d.next()
	if err != nil {
		return err
	}
	if v == mapi.MetaTagIncrSyncGroupID.Uint32() {
		pv, err := d.metaProperty()
		if err != nil {
			return err
		}
		d.tree.Elements[idx].Meta = &pv
	}
	offset := d.pos
	if err := d.expect(mapi.IncrSyncChgPartial); err != nil {
		return err
	}
	if err := d.header(idx, offset); err != nil {
		return err
	}
	for {
		v, ok, err := d.peek()
		if err != nil {
			return err
		}
		if !ok || v != mapi.MetaTagIncrementalSyncMessagePartial.Uint32() {
			break
		}
		pv, err := d.metaProperty()
		if err != nil {
			return err
		}
		props, err := d.propList()
		if err != nil {
			return err
		}
		d.tree.AddMeta(idx, KindMessagePartial, pv, props)
	}
	return d.messageChildren(idx)
}

func (d *decoder) hierarchySync(idx int) error {
	for {
		v, err := d.next()
		if err != nil {
			return err
		}
		if v != mapi.IncrSyncChg {
			break
		}
		if err := d.single(idx, KindFolderChange, mapi.IncrSyncChg); err != nil {
			return err
		}
	}
	if err := d.optional(idx, KindDeletions, mapi.IncrSyncDel); err != nil {
		return err
	}
	if err := d.state(idx); err != nil {
		return err
	}
	return d.expect(mapi.IncrSyncEnd)
}

func (d *decoder) state(parent int) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	idx := d.tree.Add(parent, KindState, nil)
	return d.stateBody(idx)
}

func (d *decoder) stateBody(idx int) error {
	offset := d.pos
	if err := d.expect(mapi.IncrSyncStateBegin); err != nil {
		return err
	}
	props, err := d.propList()
	if err != nil {
		return err
	}
	d.tree.Elements[idx].Props = props
	if err := d.check(KindState, props, offset); err != nil {
		return err
	}
	return d.expect(mapi.IncrSyncStateEnd)
}
