package fxstream

import (
	"github.com/pkg/errors"
)

//StreamType is the root production a buffer is decoded against
type StreamType int

//FastTransfer stream types
const (
	ContentsSync StreamType = iota + 1
	HierarchySync
	State
	FolderContent
	MessageContent
	AttachmentContent
	MessageList
	TopFolder
)

var streamTypeNames = map[StreamType]string{
	ContentsSync:      "contentsSync",
	HierarchySync:     "hierarchySync",
	State:             "state",
	FolderContent:     "folderContent",
	MessageContent:    "messageContent",
	AttachmentContent: "attachmentContent",
	MessageList:       "messageList",
	TopFolder:         "topFolder",
}

func (s StreamType) String() string {
	if name, ok := streamTypeNames[s]; ok {
		return name
	}
	return "unknown"
}

//ParseStreamType looks up a stream type by its grammar name
func ParseStreamType(name string) (StreamType, error) {
	for s, n := range streamTypeNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownStreamType, "%q", name)
}

//ElementKind names the grammar production an element was decoded from
type ElementKind int

//Element kinds
const (
	KindFolderContent ElementKind = iota + 1
	KindTopFolder
	KindSubFolder
	KindMessageList
	KindMessage
	KindFAIMessage
	KindMessageContent
	KindRecipient
	KindAttachment
	KindAttachmentContent
	KindEmbeddedMessage
	KindErrorInfo
	KindMetaProperty
	KindContentsSync
	KindHierarchySync
	KindProgressTotal
	KindProgressPerMessage
	KindMessageChange
	KindMessageChangePartial
	KindGroupInfo
	KindMessagePartial
	KindDeletions
	KindReadStateChanges
	KindFolderChange
	KindState
)

var kindNames = map[ElementKind]string{
	KindFolderContent:        "folderContent",
	KindTopFolder:            "topFolder",
	KindSubFolder:            "subFolder",
	KindMessageList:          "messageList",
	KindMessage:              "message",
	KindFAIMessage:           "faiMessage",
	KindMessageContent:       "messageContent",
	KindRecipient:            "recipient",
	KindAttachment:           "attachment",
	KindAttachmentContent:    "attachmentContent",
	KindEmbeddedMessage:      "embeddedMessage",
	KindErrorInfo:            "errorInfo",
	KindMetaProperty:         "metaProperty",
	KindContentsSync:         "contentsSync",
	KindHierarchySync:        "hierarchySync",
	KindProgressTotal:        "progressTotal",
	KindProgressPerMessage:   "progressPerMessage",
	KindMessageChange:        "messageChange",
	KindMessageChangePartial: "messageChangePartial",
	KindGroupInfo:            "groupInfo",
	KindMessagePartial:       "messagePartial",
	KindDeletions:            "deletions",
	KindReadStateChanges:     "readStateChanges",
	KindFolderChange:         "folderChange",
	KindState:                "state",
}

func (k ElementKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

//Element is a node of a decoded stream.
//Props holds the element's property list; for message changes it is the change header.
//Meta holds the delimiting meta-property of KindMetaProperty and KindMessagePartial elements,
//and the optional group id of KindMessageChangePartial.
//Parent and Children index into Tree.Elements, the root has Parent -1.
type Element struct {
	Kind     ElementKind
	Props    PropList
	Meta     *PropValue
	Parent   int
	Children []int
}

//Tree is the arena that holds every element of a decoded stream
type Tree struct {
	Type       StreamType
	Root       int
	Elements   []Element
	Violations []SchemaViolation
}

//NewTree returns a tree holding only a root element of the kind that matches the stream type
func NewTree(st StreamType) (*Tree, error) {
	kind, ok := rootKinds[st]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStreamType, "%d", st)
	}
	return &Tree{Type: st, Root: 0, Elements: []Element{{Kind: kind, Parent: -1}}}, nil
}

var rootKinds = map[StreamType]ElementKind{
	ContentsSync:      KindContentsSync,
	HierarchySync:     KindHierarchySync,
	State:             KindState,
	FolderContent:     KindFolderContent,
	MessageContent:    KindMessageContent,
	AttachmentContent: KindAttachmentContent,
	MessageList:       KindMessageList,
	TopFolder:         KindTopFolder,
}

//Add appends a new element under parent and returns its index
func (t *Tree) Add(parent int, kind ElementKind, props PropList) int {
	idx := len(t.Elements)
	t.Elements = append(t.Elements, Element{Kind: kind, Props: props, Parent: parent})
	if parent >= 0 {
		t.Elements[parent].Children = append(t.Elements[parent].Children, idx)
	}
	return idx
}

//AddMeta appends an element that carries a meta-property
func (t *Tree) AddMeta(parent int, kind ElementKind, meta PropValue, props PropList) int {
	idx := t.Add(parent, kind, props)
	t.Elements[idx].Meta = &meta
	return idx
}

//Get returns the element at idx
func (t *Tree) Get(idx int) *Element {
	return &t.Elements[idx]
}

//Children returns the indices of the children of idx that have the given kind
func (t *Tree) Children(idx int, kind ElementKind) []int {
	var out []int
	for _, c := range t.Elements[idx].Children {
		if t.Elements[c].Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

//Walk visits idx and its descendants depth first, stopping when fn returns false
func (t *Tree) Walk(idx int, fn func(idx, depth int) bool) {
	t.walk(idx, 0, fn)
}

func (t *Tree) walk(idx, depth int, fn func(idx, depth int) bool) bool {
	if !fn(idx, depth) {
		return false
	}
	for _, c := range t.Elements[idx].Children {
		if !t.walk(c, depth+1, fn) {
			return false
		}
	}
	return true
}
