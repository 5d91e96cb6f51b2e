package fxstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for st, tree := range allTrees(t) {
		st, tree := st, tree
		t.Run(st.String(), func(t *testing.T) {
			buf := encodeTree(t, tree)

			got, err := Decode(buf, st, DefaultOptions())
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(tree, got))

			again, err := Encode(got)
			require.NoError(t, err)
			require.Equal(t, buf, again)
		})
	}
}

func TestDecodeStructure(t *testing.T) {
	buf := encodeTree(t, contentsSyncTree(t))
	tree, err := Decode(buf, ContentsSync, DefaultOptions())
	require.NoError(t, err)

	root := tree.Get(tree.Root)
	require.Equal(t, KindContentsSync, root.Kind)
	require.Equal(t, -1, root.Parent)

	changes := tree.Children(tree.Root, KindMessageChange)
	require.Len(t, changes, 1)
	change := tree.Get(changes[0])
	require.Equal(t, mapi.PidTagSourceKey, change.Props[0].Tag)

	content := tree.Get(change.Children[0])
	require.Equal(t, KindMessageContent, content.Kind)
	subject, err := content.Props[0].Str()
	require.NoError(t, err)
	require.Equal(t, "hello", subject)

	partials := tree.Children(tree.Root, KindMessageChangePartial)
	require.Len(t, partials, 1)
	partial := tree.Get(partials[0])
	require.NotNil(t, partial.Meta)
	require.Len(t, tree.Children(partials[0], KindMessagePartial), 2)

	states := tree.Children(tree.Root, KindState)
	require.Len(t, states, 1)
	given, ok := tree.Get(states[0]).Props.Find(mapi.MetaTagIdsetGiven.PropertyID)
	require.True(t, ok)
	require.Equal(t, CategoryVariable, given.Category())

	depths := map[ElementKind]int{}
	tree.Walk(tree.Root, func(idx, depth int) bool {
		depths[tree.Get(idx).Kind] = depth
		return true
	})
	require.Equal(t, 4, depths[KindEmbeddedMessage])
}

func TestDecodeEmptyAndTrailing(t *testing.T) {
	_, err := Decode(nil, MessageContent, DefaultOptions())
	require.ErrorIs(t, err, ErrTruncatedStream)

	buf := encodeTree(t, stateTree(t))
	_, err = Decode(append(buf, 0x03, 0x00, 0x0D, 0x40), State, DefaultOptions())
	require.ErrorIs(t, err, ErrUnexpectedMarker)

	_, err = Decode(append(buf, 0x03, 0x00), State, DefaultOptions())
	require.ErrorIs(t, err, ErrTruncatedStream)

	_, err = Decode(buf, StreamType(42), DefaultOptions())
	require.ErrorIs(t, err, ErrUnknownStreamType)
}

func TestDecodeTruncated(t *testing.T) {
	buf := encodeTree(t, contentsSyncTree(t))
	for n := 1; n < len(buf); n++ {
		tree, err := Decode(buf[:n], ContentsSync, DefaultOptions())
		require.Error(t, err, "prefix of %d bytes", n)
		require.Nil(t, tree)
	}
	for _, n := range []int{3, len(buf) - 4, len(buf) - 1} {
		_, err := Decode(buf[:n], ContentsSync, DefaultOptions())
		require.ErrorIs(t, err, ErrTruncatedStream, "prefix of %d bytes", n)
	}

	//cutting a value short is a length error
	_, err := Decode(buf[:16], ContentsSync, DefaultOptions())
	require.ErrorIs(t, err, ErrMalformedLength)
}

func TestMissingState(t *testing.T) {
	var buf []byte
	buf = appendUint32(buf, mapi.IncrSyncEnd)
	_, err := Decode(buf, HierarchySync, DefaultOptions())
	require.ErrorIs(t, err, ErrUnexpectedMarker)
}

func TestProgressTotalExtraProperty(t *testing.T) {
	tree := contentsSyncTree(t)
	progress := tree.Children(tree.Root, KindProgressTotal)[0]
	tree.Elements[progress].Props = append(tree.Elements[progress].Props, Int32Value(mapi.PidTagMessageFlags, 1))
	buf := encodeTree(t, tree)

	_, err := Decode(buf, ContentsSync, DefaultOptions())
	var violation *SchemaViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, "progressTotal", violation.Element)
	require.Equal(t, mapi.PidTagMessageFlags.PropertyID, violation.PropertyID)

	lenient, err := Decode(buf, ContentsSync, DefaultOptions().Lenient())
	require.NoError(t, err)
	require.Len(t, lenient.Violations, 1)
	require.Equal(t, "progressTotal", lenient.Violations[0].Element)
}

func TestHeaderMissingChangeKey(t *testing.T) {
	tree := contentsSyncTree(t)
	change := tree.Children(tree.Root, KindMessageChange)[0]
	props := tree.Elements[change].Props
	tree.Elements[change].Props = append(append(PropList{}, props[:2]...), props[3:]...)
	buf := encodeTree(t, tree)

	tree, err := Decode(buf, ContentsSync, DefaultOptions())
	require.Nil(t, tree)
	var violation *SchemaViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, "messageChangeHeader", violation.Element)
	require.Equal(t, mapi.PidTagChangeKey.PropertyID, violation.PropertyID)
}

func TestHeaderForbiddenProperty(t *testing.T) {
	tree := contentsSyncTree(t)
	change := tree.Children(tree.Root, KindMessageChange)[0]
	tree.Elements[change].Props = append(tree.Elements[change].Props, StringValue(mapi.PidTagSubject, "no"))
	_, err := Decode(encodeTree(t, tree), ContentsSync, DefaultOptions())
	var violation *SchemaViolation
	require.True(t, errors.As(err, &violation))
	require.Equal(t, mapi.PidTagSubject.PropertyID, violation.PropertyID)
}

func TestElementRules(t *testing.T) {
	for _, tc := range []struct {
		name  string
		kind  ElementKind
		props PropList
		id    uint16
		ok    bool
	}{
		{"progressPerMessage", KindProgressPerMessage, PropList{Int32Value(mapi.ProgressMessageSize, 1), BoolValue(mapi.ProgressMessageFAI, true)}, 0, true},
		{"progressPerMessage swapped", KindProgressPerMessage, PropList{BoolValue(mapi.ProgressMessageFAI, true), Int32Value(mapi.ProgressMessageSize, 1)}, 0x0000, false},
		{"progressPerMessage short", KindProgressPerMessage, PropList{Int32Value(mapi.ProgressMessageSize, 1)}, 0x0000, false},
		{"groupInfo", KindGroupInfo, PropList{BinaryValue(mapi.PropertyGroupInfo, []byte{1})}, 0, true},
		{"groupInfo empty", KindGroupInfo, nil, 0x0000, false},
		{"deletions", KindDeletions, PropList{BinaryValue(mapi.MetaTagIdsetExpired, []byte{1})}, 0, true},
		{"deletions empty", KindDeletions, nil, mapi.MetaTagIdsetDeleted.PropertyID, false},
		{"deletions foreign", KindDeletions, PropList{BinaryValue(mapi.MetaTagIdsetRead, []byte{1})}, mapi.MetaTagIdsetRead.PropertyID, false},
		{"readState", KindReadStateChanges, PropList{BinaryValue(mapi.MetaTagIdsetUnread, []byte{1})}, 0, true},
		{"readState foreign", KindReadStateChanges, PropList{BinaryValue(mapi.MetaTagIdsetDeleted, []byte{1})}, mapi.MetaTagIdsetDeleted.PropertyID, false},
		{"state empty", KindState, nil, 0, true},
		{"state foreign", KindState, PropList{StringValue(mapi.PidTagSubject, "x")}, mapi.PidTagSubject.PropertyID, false},
		{"folderChange no name", KindFolderChange, PropList{BinaryValue(mapi.PidTagParentSourceKey, []byte{1}), BinaryValue(mapi.PidTagSourceKey, []byte{1}),
			TimeValue(mapi.PidTagLastModificationTime, testModified), BinaryValue(mapi.PidTagChangeKey, []byte{1}), BinaryValue(mapi.PidTagPredecessorChangeList, []byte{1})},
			mapi.PidTagDisplayName.PropertyID, false},
		{"recipient has no rules", KindRecipient, PropList{StringValue(mapi.PidTagSubject, "x")}, 0, true},
	} {
		v := Validate(tc.kind, tc.props)
		if tc.ok {
			require.Nil(t, v, tc.name)
			continue
		}
		require.NotNil(t, v, tc.name)
		require.Equal(t, tc.id, v.PropertyID, tc.name)
	}
}

func TestMaxDepth(t *testing.T) {
	tree := newTree(t, MessageContent)
	parent := tree.Root
	for i := 0; i < 4; i++ {
		att := tree.Add(parent, KindAttachment, attachmentProps())
		parent = tree.Add(att, KindEmbeddedMessage, messageProps("deep"))
	}
	buf := encodeTree(t, tree)

	opts := DefaultOptions()
	opts.MaxDepth = 8
	_, err := Decode(buf, MessageContent, opts)
	require.NoError(t, err)

	opts.MaxDepth = 7
	_, err = Decode(buf, MessageContent, opts)
	require.ErrorIs(t, err, ErrDepthExceeded)
}

func TestMessageListNeedsMessage(t *testing.T) {
	tree := newTree(t, MessageList)
	tree.AddMeta(tree.Root, KindMetaProperty, Int32Value(mapi.MetaTagEcWarning, 1), nil)
	buf := encodeTree(t, tree)

	_, err := Decode(buf, MessageList, DefaultOptions())
	var violation *SchemaViolation
	require.True(t, errors.As(err, &violation))

	got, err := Decode(buf, MessageList, DefaultOptions().Lenient())
	require.NoError(t, err)
	require.Len(t, got.Violations, 1)
}

func TestProgressPerMessageWithoutChange(t *testing.T) {
	var buf []byte
	buf = appendUint32(buf, mapi.IncrSyncProgressPerMsg)
	var err error
	buf, err = appendPropValue(buf, Int32Value(mapi.ProgressMessageSize, 1))
	require.NoError(t, err)
	buf, err = appendPropValue(buf, BoolValue(mapi.ProgressMessageFAI, false))
	require.NoError(t, err)
	buf = appendUint32(buf, mapi.IncrSyncStateBegin)
	buf = appendUint32(buf, mapi.IncrSyncStateEnd)
	buf = appendUint32(buf, mapi.IncrSyncEnd)

	_, err = Decode(buf, ContentsSync, DefaultOptions())
	require.ErrorIs(t, err, ErrUnexpectedMarker)
}

func TestEncodeRejectsBadTrees(t *testing.T) {
	_, err := Encode(nil)
	require.Error(t, err)

	tree := newTree(t, ContentsSync)
	tree.Type = State
	_, err = Encode(tree)
	require.ErrorIs(t, err, ErrUnknownStreamType)

	tree = newTree(t, ContentsSync)
	tree.Add(tree.Root, KindMessageChangePartial, changeHeader())
	_, err = Encode(tree)
	require.Error(t, err)

	tree = newTree(t, MessageContent)
	tree.Add(tree.Root, KindMetaProperty, nil)
	_, err = Encode(tree)
	require.Error(t, err)
}

func TestStreamTypeNames(t *testing.T) {
	for st := range allTrees(t) {
		parsed, err := ParseStreamType(st.String())
		require.NoError(t, err)
		require.Equal(t, st, parsed)
	}
	_, err := ParseStreamType("mailbox")
	require.ErrorIs(t, err, ErrUnknownStreamType)
}
