package fxstream

import (
	"testing"
	"time"

	"github.com/sensepost/fxics/mapi"
	"github.com/stretchr/testify/require"
)

var (
	testReplGUID = mapi.MustParseGUID("{5b7e2c5a-3c7e-4f1d-9a0e-1c0b7e4a2f11}")
	testModified = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)
)

func changeHeader() PropList {
	changeKey := append(append([]byte{}, testReplGUID[:]...), 0x00, 0x00, 0x00, 0x00, 0x12, 0x34)
	pcl := append([]byte{byte(len(changeKey))}, changeKey...)
	return PropList{
		BinaryValue(mapi.PidTagSourceKey, append(append([]byte{}, testReplGUID[:]...), 0, 0, 0, 0, 0, 0x21)),
		TimeValue(mapi.PidTagLastModificationTime, testModified),
		BinaryValue(mapi.PidTagChangeKey, changeKey),
		BinaryValue(mapi.PidTagPredecessorChangeList, pcl),
		BoolValue(mapi.PidTagAssociated, false),
		Int64Value(mapi.PidTagMid, 0x2100000000000001),
		Int32Value(mapi.PidTagMessageSize, 512),
	}
}

func messageProps(subject string) PropList {
	keywords := mapi.NamedProperty{PropertySet: mapi.PSPublicStrings, Kind: mapi.KindName, Name: "Keywords"}
	reminder := mapi.NamedProperty{PropertySet: mapi.PSETIDCommon, Kind: mapi.KindDispID, DispID: 0x8503}
	return PropList{
		StringValue(mapi.PidTagSubject, subject),
		StringValue(mapi.PidTagMessageClass, "IPM.Note"),
		Int32Value(mapi.PidTagImportance, 1),
		{Tag: mapi.PropertyTag{PropertyType: 0x101F, PropertyID: 0x8000}, Named: &keywords,
			Multi: [][]byte{StringValue(mapi.PidTagSubject, "red").Var, StringValue(mapi.PidTagSubject, "blue").Var}},
		{Tag: mapi.PropertyTag{PropertyType: mapi.PtypBoolean, PropertyID: 0x8001}, Named: &reminder, Fixed: []byte{0x01, 0x00}},
		MultiValue(mapi.PropertyTag{PropertyType: 0x1003, PropertyID: 0x7001}, []byte{1, 0, 0, 0}, []byte{2, 0, 0, 0}),
	}
}

func recipientProps() PropList {
	return PropList{
		Int32Value(mapi.PidTagRowid, 0),
		Int32Value(mapi.PidTagRecipientType, 1),
		StringValue(mapi.PidTagEmailAddress, "john@example.com"),
	}
}

func attachmentProps() PropList {
	return PropList{
		Int32Value(mapi.PidTagAttachNumber, 0),
		Int32Value(mapi.PidTagAttachMethod, 5),
		StringValue(mapi.PidTagAttachLongFilename, "forward.msg"),
	}
}

//addMessageBody fills a message content element with a recipient and an attachment holding an embedded message
func addMessageBody(t *Tree, idx int) {
	t.Add(idx, KindRecipient, recipientProps())
	att := t.Add(idx, KindAttachment, attachmentProps())
	emb := t.Add(att, KindEmbeddedMessage, messageProps("inner"))
	t.Add(emb, KindRecipient, recipientProps())
}

func stateProps() PropList {
	return PropList{
		BinaryValue(mapi.MetaTagIdsetGiven, append(append([]byte{}, testReplGUID[:]...), 0x04, 0x00, 0x00, 0x00, 0x00, 0x52, 0x00, 0x01, 0x00, 0x05, 0x50, 0x00)),
		BinaryValue(mapi.MetaTagCnsetSeen, append(append([]byte{}, testReplGUID[:]...), 0x06, 0x00, 0x00, 0x00, 0x00, 0x12, 0x34, 0x00)),
		BinaryValue(mapi.MetaTagCnsetSeenFAI, append(append([]byte{}, testReplGUID[:]...), 0x00)),
		BinaryValue(mapi.MetaTagCnsetRead, append(append([]byte{}, testReplGUID[:]...), 0x00)),
	}
}

func newTree(t *testing.T, st StreamType) *Tree {
	tree, err := NewTree(st)
	require.NoError(t, err)
	return tree
}

func contentsSyncTree(t *testing.T) *Tree {
	tree := newTree(t, ContentsSync)
	root := tree.Root
	tree.Add(root, KindProgressTotal, PropList{BinaryValue(mapi.ProgressInformation, []byte{0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})})
	tree.Add(root, KindProgressPerMessage, PropList{Int32Value(mapi.ProgressMessageSize, 1024), BoolValue(mapi.ProgressMessageFAI, false)})

	full := tree.Add(root, KindMessageChange, changeHeader())
	content := tree.Add(full, KindMessageContent, messageProps("hello"))
	addMessageBody(tree, content)

	partial := tree.Add(root, KindMessageChangePartial, changeHeader())
	tree.Add(partial, KindGroupInfo, PropList{BinaryValue(mapi.PropertyGroupInfo, []byte{0x01, 0x00, 0x00, 0x00})})
	tree.Elements[partial].Meta = &PropValue{Tag: mapi.MetaTagIncrSyncGroupID, Fixed: []byte{0x01, 0x00, 0x00, 0x00}}
	tree.AddMeta(partial, KindMessagePartial, Int32Value(mapi.MetaTagIncrementalSyncMessagePartial, 0), PropList{StringValue(mapi.PidTagSubject, "changed")})
	tree.AddMeta(partial, KindMessagePartial, Int32Value(mapi.MetaTagIncrementalSyncMessagePartial, 2), PropList{StringValue(mapi.PidTagBody, "new body")})
	tree.AddMeta(partial, KindMetaProperty, Int32Value(mapi.MetaTagFXDelProp, mapi.PidTagRecipientType.Uint32()), nil)
	tree.Add(partial, KindRecipient, recipientProps())

	tree.Add(root, KindDeletions, PropList{BinaryValue(mapi.MetaTagIdsetDeleted, []byte{0x01, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00})})
	tree.Add(root, KindReadStateChanges, PropList{BinaryValue(mapi.MetaTagIdsetRead, []byte{0x01, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00})})
	tree.Add(root, KindState, stateProps())
	return tree
}

func hierarchySyncTree(t *testing.T) *Tree {
	tree := newTree(t, HierarchySync)
	root := tree.Root
	for i, name := range []string{"Inbox", "Archive"} {
		tree.Add(root, KindFolderChange, PropList{
			BinaryValue(mapi.PidTagParentSourceKey, append(append([]byte{}, testReplGUID[:]...), 0, 0, 0, 0, 0, 0x01)),
			BinaryValue(mapi.PidTagSourceKey, append(append([]byte{}, testReplGUID[:]...), 0, 0, 0, 0, 0, byte(0x10+i))),
			TimeValue(mapi.PidTagLastModificationTime, testModified),
			BinaryValue(mapi.PidTagChangeKey, append(append([]byte{}, testReplGUID[:]...), 0, 0, 0, 0, 0, byte(0x20+i))),
			BinaryValue(mapi.PidTagPredecessorChangeList, append([]byte{22}, append(append([]byte{}, testReplGUID[:]...), 0, 0, 0, 0, 0, byte(0x20+i))...)),
			StringValue(mapi.PidTagDisplayName, name),
			Int64Value(mapi.PidTagFolderID, uint64(0x0001000000000010+i)),
			StringValue(mapi.PidTagContainerClass, "IPF.Note"),
		})
	}
	tree.Add(root, KindDeletions, PropList{BinaryValue(mapi.MetaTagIdsetNoLongerInScope, []byte{0x01, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x30, 0x00})})
	tree.Add(root, KindState, nil)
	return tree
}

func stateTree(t *testing.T) *Tree {
	tree := newTree(t, State)
	tree.Elements[tree.Root].Props = stateProps()
	return tree
}

func folderContentTree(t *testing.T) *Tree {
	tree := newTree(t, FolderContent)
	root := tree.Root
	tree.Elements[root].Props = PropList{
		StringValue(mapi.PidTagDisplayName, "Inbox"),
		StringValue(mapi.PidTagContainerClass, "IPF.Note"),
	}
	tree.AddMeta(root, KindMetaProperty, Int32Value(mapi.MetaTagEcWarning, mapi.ECNotFound), nil)
	tree.AddMeta(root, KindMetaProperty, Int32Value(mapi.MetaTagFXDelProp, mapi.PidTagBody.Uint32()), nil)
	msg := tree.Add(root, KindMessage, messageProps("first"))
	addMessageBody(tree, msg)
	tree.Add(root, KindFAIMessage, PropList{StringValue(mapi.PidTagMessageClass, "IPM.Rule.Version2.Message")})
	sub := tree.Add(root, KindSubFolder, PropList{StringValue(mapi.PidTagDisplayName, "Sub")})
	tree.Add(sub, KindMessage, messageProps("nested"))
	tree.AddMeta(sub, KindMetaProperty, BinaryValue(mapi.MetaTagNewFXFolder, []byte{0x01, 0x02, 0x03}), nil)
	tree.Add(root, KindErrorInfo, PropList{Int32Value(mapi.PropertyTag{PropertyType: mapi.PtypErrorCode, PropertyID: 0x0000}, mapi.ECDupName)})
	return tree
}

func messageContentTree(t *testing.T) *Tree {
	tree := newTree(t, MessageContent)
	root := tree.Root
	tree.Elements[root].Props = messageProps("content")
	tree.AddMeta(root, KindMetaProperty, Int32Value(mapi.MetaTagFXDelProp, mapi.PidTagRecipientType.Uint32()), nil)
	addMessageBody(tree, root)
	return tree
}

func attachmentContentTree(t *testing.T) *Tree {
	tree := newTree(t, AttachmentContent)
	root := tree.Root
	tree.Elements[root].Props = append(attachmentProps(), BinaryValue(mapi.PidTagAttachDataBinary, []byte("payload")))
	emb := tree.Add(root, KindEmbeddedMessage, messageProps("embedded"))
	tree.Add(emb, KindRecipient, recipientProps())
	return tree
}

func messageListTree(t *testing.T) *Tree {
	tree := newTree(t, MessageList)
	root := tree.Root
	tree.AddMeta(root, KindMetaProperty, Int32Value(mapi.MetaTagEcWarning, mapi.ECNotFound), nil)
	msg := tree.Add(root, KindMessage, messageProps("one"))
	addMessageBody(tree, msg)
	tree.Add(root, KindFAIMessage, messageProps("two"))
	return tree
}

func topFolderTree(t *testing.T) *Tree {
	tree := newTree(t, TopFolder)
	root := tree.Root
	tree.Elements[root].Props = PropList{StringValue(mapi.PidTagDisplayName, "Top")}
	sub := tree.Add(root, KindSubFolder, PropList{StringValue(mapi.PidTagDisplayName, "Child")})
	tree.Add(sub, KindFAIMessage, messageProps("rule"))
	tree.Add(root, KindMessage, messageProps("top message"))
	return tree
}

func allTrees(t *testing.T) map[StreamType]*Tree {
	return map[StreamType]*Tree{
		ContentsSync:      contentsSyncTree(t),
		HierarchySync:     hierarchySyncTree(t),
		State:             stateTree(t),
		FolderContent:     folderContentTree(t),
		MessageContent:    messageContentTree(t),
		AttachmentContent: attachmentContentTree(t),
		MessageList:       messageListTree(t),
		TopFolder:         topFolderTree(t),
	}
}

func encodeTree(t *testing.T, tree *Tree) []byte {
	buf, err := Encode(tree)
	require.NoError(t, err)
	return buf
}
