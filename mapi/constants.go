package mapi

//Property Data types
const (
	PtypUnspecified    = 0x0000
	PtypNull           = 0x0001
	PtypInteger16      = 0x0002
	PtypInteger32      = 0x0003
	PtypFloating32     = 0x0004
	PtypFloating64     = 0x0005
	PtypCurrency       = 0x0006
	PtypFloatingTime   = 0x0007
	PtypErrorCode      = 0x000A
	PtypBoolean        = 0x000B
	PtypObject         = 0x000D
	PtypInteger64      = 0x0014
	PtypString8        = 0x001E
	PtypString         = 0x001F
	PtypTime           = 0x0040
	PtypGUID           = 0x0048
	PtypServerID       = 0x00FB
	PtypRestriction    = 0x00FD
	PtypRuleAction     = 0x00FE
	PtypBinary         = 0x0102
	PtypMultipleBinary = 0x1102
)

//Type flags
const (
	MultiValueFlag = 0x1000
	CodePageFlag   = 0x8000
)

//NamedPropertyBase is the first property id of the named range
const NamedPropertyBase = 0x8000

//Named property kinds
const (
	KindDispID = 0x00
	KindName   = 0x01
)

//-------- MARKERS -------

//Find these in [MS-OXCFXICS] 2.2.4.1.4
const (
	StartTopFld            uint32 = 0x40090003
	StartSubFld            uint32 = 0x400A0003
	EndFolder              uint32 = 0x400B0003
	StartMessage           uint32 = 0x400C0003
	EndMessage             uint32 = 0x400D0003
	StartFAIMsg            uint32 = 0x40100003
	StartEmbed             uint32 = 0x40010003
	EndEmbed               uint32 = 0x40020003
	StartRecip             uint32 = 0x40030003
	EndToRecip             uint32 = 0x40040003
	NewAttach              uint32 = 0x40000003
	EndAttach              uint32 = 0x400E0003
	IncrSyncChg            uint32 = 0x40120003
	IncrSyncChgPartial     uint32 = 0x407D0003
	IncrSyncDel            uint32 = 0x40130003
	IncrSyncEnd            uint32 = 0x40140003
	IncrSyncRead           uint32 = 0x402F0003
	IncrSyncStateBegin     uint32 = 0x403A0003
	IncrSyncStateEnd       uint32 = 0x403B0003
	IncrSyncProgressMode   uint32 = 0x4074000B
	IncrSyncProgressPerMsg uint32 = 0x4075000B
	IncrSyncMessage        uint32 = 0x40150003
	IncrSyncGroupInfo      uint32 = 0x407B0102
	FXErrorInfo            uint32 = 0x40180003
)

var markers = map[uint32]string{
	StartTopFld:            "StartTopFld",
	StartSubFld:            "StartSubFld",
	EndFolder:              "EndFolder",
	StartMessage:           "StartMessage",
	EndMessage:             "EndMessage",
	StartFAIMsg:            "StartFAIMsg",
	StartEmbed:             "StartEmbed",
	EndEmbed:               "EndEmbed",
	StartRecip:             "StartRecip",
	EndToRecip:             "EndToRecip",
	NewAttach:              "NewAttach",
	EndAttach:              "EndAttach",
	IncrSyncChg:            "IncrSyncChg",
	IncrSyncChgPartial:     "IncrSyncChgPartial",
	IncrSyncDel:            "IncrSyncDel",
	IncrSyncEnd:            "IncrSyncEnd",
	IncrSyncRead:           "IncrSyncRead",
	IncrSyncStateBegin:     "IncrSyncStateBegin",
	IncrSyncStateEnd:       "IncrSyncStateEnd",
	IncrSyncProgressMode:   "IncrSyncProgressMode",
	IncrSyncProgressPerMsg: "IncrSyncProgressPerMsg",
	IncrSyncMessage:        "IncrSyncMessage",
	IncrSyncGroupInfo:      "IncrSyncGroupInfo",
	FXErrorInfo:            "FXErrorInfo",
}

//IsMarker reports whether the 4 byte value is a stream marker
func IsMarker(v uint32) bool {
	_, ok := markers[v]
	return ok
}

//MarkerName returns the name of a marker, or "" for anything else
func MarkerName(v uint32) string {
	return markers[v]
}

//-------- META-PROPERTIES -------

//MetaTagFXDelProp and friends delimit a property list, they are still serialized as property values
var (
	MetaTagFXDelProp                     = PropertyTag{PtypInteger32, 0x4016}
	MetaTagEcWarning                     = PropertyTag{PtypInteger32, 0x400F}
	MetaTagNewFXFolder                   = PropertyTag{PtypBinary, 0x4011}
	MetaTagIncrSyncGroupID               = PropertyTag{PtypInteger32, 0x407C}
	MetaTagIncrementalSyncMessagePartial = PropertyTag{PtypInteger32, 0x407A}
	MetaTagDnPrefix                      = PropertyTag{PtypString8, 0x4008}
)

//IsDelimiter reports whether the tag is a meta-property that ends a property list
func IsDelimiter(v uint32) bool {
	switch v {
	case MetaTagFXDelProp.Uint32(), MetaTagEcWarning.Uint32(), MetaTagNewFXFolder.Uint32(),
		MetaTagIncrSyncGroupID.Uint32(), MetaTagIncrementalSyncMessagePartial.Uint32():
		return true
	}
	return false
}

//-------- TAGS -------

//Find these in [MS-OXPROPS] and [MS-OXCFXICS]

//MetaTagIdsetGiven is typed PtypInteger32 but always carries a binary IDSET
var MetaTagIdsetGiven = PropertyTag{PtypInteger32, 0x4017}

//State and deletion IDSETs
var (
	MetaTagCnsetSeen            = PropertyTag{PtypBinary, 0x6796}
	MetaTagCnsetSeenFAI         = PropertyTag{PtypBinary, 0x67DA}
	MetaTagCnsetRead            = PropertyTag{PtypBinary, 0x67D2}
	MetaTagIdsetDeleted         = PropertyTag{PtypBinary, 0x67E5}
	MetaTagIdsetNoLongerInScope = PropertyTag{PtypBinary, 0x4021}
	MetaTagIdsetExpired         = PropertyTag{PtypBinary, 0x6793}
	MetaTagIdsetRead            = PropertyTag{PtypBinary, 0x402D}
	MetaTagIdsetUnread          = PropertyTag{PtypBinary, 0x402E}
)

//Change tracking
var (
	PidTagSourceKey             = PropertyTag{PtypBinary, 0x65E0}
	PidTagParentSourceKey       = PropertyTag{PtypBinary, 0x65E1}
	PidTagChangeKey             = PropertyTag{PtypBinary, 0x65E2}
	PidTagPredecessorChangeList = PropertyTag{PtypBinary, 0x65E3}
	PidTagLastModificationTime  = PropertyTag{PtypTime, 0x3008}
	PidTagAssociated            = PropertyTag{PtypBoolean, 0x67AA}
	PidTagMid                   = PropertyTag{PtypInteger64, 0x674A}
	PidTagFolderID              = PropertyTag{PtypInteger64, 0x6748}
	PidTagMessageSize           = PropertyTag{PtypInteger32, 0x0E08}
	PidTagChangeNumber          = PropertyTag{PtypInteger64, 0x67A4}
	PidTagDisplayName           = PropertyTag{PtypString, 0x3001}
)

//Progress and group information carry untagged properties
var (
	ProgressInformation = PropertyTag{PtypBinary, 0x0000}
	ProgressMessageSize = PropertyTag{PtypInteger32, 0x0000}
	ProgressMessageFAI  = PropertyTag{PtypBoolean, 0x0000}
	PropertyGroupInfo   = PropertyTag{PtypBinary, 0x0000}
)

//Message and folder properties commonly seen in FastTransfer streams
var (
	PidTagSubject            = PropertyTag{PtypString, 0x0037}
	PidTagMessageClass       = PropertyTag{PtypString, 0x001A}
	PidTagBody               = PropertyTag{PtypString, 0x1000}
	PidTagMessageFlags       = PropertyTag{PtypInteger32, 0x0E07}
	PidTagImportance         = PropertyTag{PtypInteger32, 0x0017}
	PidTagRecipientType      = PropertyTag{PtypInteger32, 0x0C15}
	PidTagEmailAddress       = PropertyTag{PtypString, 0x3003}
	PidTagAttachNumber       = PropertyTag{PtypInteger32, 0x0E21}
	PidTagAttachMethod       = PropertyTag{PtypInteger32, 0x3705}
	PidTagAttachLongFilename = PropertyTag{PtypString, 0x3707}
	PidTagAttachDataBinary   = PropertyTag{PtypBinary, 0x3701}
	PidTagContainerClass     = PropertyTag{PtypString, 0x3613}
	PidTagRowid              = PropertyTag{PtypInteger32, 0x3000}
)

//ECSuccess and the error codes used in FXErrorInfo elements
const (
	ECSuccess  = 0x00000000
	ECNotFound = 0x8004010F
	ECDupName  = 0x80040604
)
