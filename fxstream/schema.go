package fxstream

import (
	"github.com/sensepost/fxics/mapi"
)

var headerRequired = []mapi.PropertyTag{
	mapi.PidTagSourceKey,
	mapi.PidTagLastModificationTime,
	mapi.PidTagChangeKey,
	mapi.PidTagPredecessorChangeList,
	mapi.PidTagAssociated,
}

var headerOptional = map[mapi.PropertyTag]bool{
	mapi.PidTagMid:          true,
	mapi.PidTagMessageSize:  true,
	mapi.PidTagChangeNumber: true,
}

var deletionIDs = map[uint16]bool{
	mapi.MetaTagIdsetDeleted.PropertyID:         true,
	mapi.MetaTagIdsetNoLongerInScope.PropertyID: true,
	mapi.MetaTagIdsetExpired.PropertyID:         true,
}

var readStateIDs = map[uint16]bool{
	mapi.MetaTagIdsetRead.PropertyID:   true,
	mapi.MetaTagIdsetUnread.PropertyID: true,
}

var stateIDs = map[uint16]bool{
	mapi.MetaTagIdsetGiven.PropertyID:   true,
	mapi.MetaTagCnsetSeen.PropertyID:    true,
	mapi.MetaTagCnsetSeenFAI.PropertyID: true,
	mapi.MetaTagCnsetRead.PropertyID:    true,
}

//folderChangeRequired lists ids that must be present. PidTagFolderId is only absent on top folders,
//which cannot be told apart from the property list alone, so it is not checked.
var folderChangeRequired = []uint16{
	mapi.PidTagParentSourceKey.PropertyID,
	mapi.PidTagSourceKey.PropertyID,
	mapi.PidTagLastModificationTime.PropertyID,
	mapi.PidTagChangeKey.PropertyID,
	mapi.PidTagPredecessorChangeList.PropertyID,
	mapi.PidTagDisplayName.PropertyID,
}

//Validate checks a property list against the rules of an element kind.
//It returns nil for kinds without property rules.
func Validate(kind ElementKind, props PropList) *SchemaViolation {
	return checkElement(kind, props)
}

func checkElement(kind ElementKind, props PropList) *SchemaViolation {
	switch kind {
	case KindProgressTotal:
		return exactly(kind.String(), props, mapi.ProgressInformation)
	case KindProgressPerMessage:
		return exactly(kind.String(), props, mapi.ProgressMessageSize, mapi.ProgressMessageFAI)
	case KindGroupInfo:
		return exactly(kind.String(), props, mapi.PropertyGroupInfo)
	case KindMessageChange, KindMessageChangePartial:
		return checkHeader(props)
	case KindDeletions:
		return oneOrMore(kind.String(), props, deletionIDs, mapi.MetaTagIdsetDeleted.PropertyID)
	case KindReadStateChanges:
		return oneOrMore(kind.String(), props, readStateIDs, mapi.MetaTagIdsetRead.PropertyID)
	case KindState:
		for _, p := range props {
			if !stateIDs[p.Tag.PropertyID] || p.Named != nil {
				return &SchemaViolation{Element: kind.String(), PropertyID: p.Tag.PropertyID, Reason: "is not allowed"}
			}
		}
	case KindFolderChange:
		for _, id := range folderChangeRequired {
			if _, ok := props.Find(id); !ok {
				return &SchemaViolation{Element: kind.String(), PropertyID: id, Reason: "is required"}
			}
		}
	}
	return nil
}

func exactly(element string, props PropList, want ...mapi.PropertyTag) *SchemaViolation {
	for i, tag := range want {
		if i >= len(props) {
			return &SchemaViolation{Element: element, PropertyID: tag.PropertyID, Reason: "is required"}
		}
		if props[i].Tag != tag || props[i].Named != nil {
			return &SchemaViolation{Element: element, PropertyID: props[i].Tag.PropertyID, Reason: "is not allowed at this position"}
		}
	}
	if len(props) > len(want) {
		return &SchemaViolation{Element: element, PropertyID: props[len(want)].Tag.PropertyID, Reason: "is not allowed"}
	}
	return nil
}

func oneOrMore(element string, props PropList, allowed map[uint16]bool, first uint16) *SchemaViolation {
	if len(props) == 0 {
		return &SchemaViolation{Element: element, PropertyID: first, Reason: "at least one IDSET is required"}
	}
	for _, p := range props {
		if !allowed[p.Tag.PropertyID] || p.Named != nil {
			return &SchemaViolation{Element: element, PropertyID: p.Tag.PropertyID, Reason: "is not allowed"}
		}
	}
	return nil
}

func checkHeader(props PropList) *SchemaViolation {
	const element = "messageChangeHeader"
	for i, tag := range headerRequired {
		if i >= len(props) || props[i].Tag != tag || props[i].Named != nil {
			return &SchemaViolation{Element: element, PropertyID: tag.PropertyID, Reason: "is required at this position"}
		}
	}
	seen := map[mapi.PropertyTag]bool{}
	for _, p := range props[len(headerRequired):] {
		if !headerOptional[p.Tag] || p.Named != nil {
			return &SchemaViolation{Element: element, PropertyID: p.Tag.PropertyID, Reason: "is not allowed"}
		}
		if seen[p.Tag] {
			return &SchemaViolation{Element: element, PropertyID: p.Tag.PropertyID, Reason: "appears more than once"}
		}
		seen[p.Tag] = true
	}
	return nil
}
