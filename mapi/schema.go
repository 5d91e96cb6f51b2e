package mapi

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

//PropertySchema maps wire identifiers to human readable names. It is only used for display.
type PropertySchema interface {
	TagName(tag PropertyTag) (string, bool)
	NamedName(np NamedProperty) (string, bool)
}

//Registry is the default PropertySchema. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ids   map[uint16]string
	named map[NamedProperty]string
}

//NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{ids: map[uint16]string{}, named: map[NamedProperty]string{}}
}

//DefaultSchema returns a registry loaded with the properties this package knows about
func DefaultSchema() *Registry {
	r := NewRegistry()
	for name, tag := range map[string]PropertyTag{
		"MetaTagFXDelProp":                     MetaTagFXDelProp,
		"MetaTagEcWarning":                     MetaTagEcWarning,
		"MetaTagNewFXFolder":                   MetaTagNewFXFolder,
		"MetaTagIncrSyncGroupId":               MetaTagIncrSyncGroupID,
		"MetaTagIncrementalSyncMessagePartial": MetaTagIncrementalSyncMessagePartial,
		"MetaTagDnPrefix":                      MetaTagDnPrefix,
		"MetaTagIdsetGiven":                    MetaTagIdsetGiven,
		"MetaTagCnsetSeen":                     MetaTagCnsetSeen,
		"MetaTagCnsetSeenFAI":                  MetaTagCnsetSeenFAI,
		"MetaTagCnsetRead":                     MetaTagCnsetRead,
		"MetaTagIdsetDeleted":                  MetaTagIdsetDeleted,
		"MetaTagIdsetNoLongerInScope":          MetaTagIdsetNoLongerInScope,
		"MetaTagIdsetExpired":                  MetaTagIdsetExpired,
		"MetaTagIdsetRead":                     MetaTagIdsetRead,
		"MetaTagIdsetUnread":                   MetaTagIdsetUnread,
		"PidTagSourceKey":                      PidTagSourceKey,
		"PidTagParentSourceKey":                PidTagParentSourceKey,
		"PidTagChangeKey":                      PidTagChangeKey,
		"PidTagPredecessorChangeList":          PidTagPredecessorChangeList,
		"PidTagLastModificationTime":           PidTagLastModificationTime,
		"PidTagAssociated":                     PidTagAssociated,
		"PidTagMid":                            PidTagMid,
		"PidTagFolderId":                       PidTagFolderID,
		"PidTagMessageSize":                    PidTagMessageSize,
		"PidTagChangeNumber":                   PidTagChangeNumber,
		"PidTagDisplayName":                    PidTagDisplayName,
		"PidTagSubject":                        PidTagSubject,
		"PidTagMessageClass":                   PidTagMessageClass,
		"PidTagBody":                           PidTagBody,
		"PidTagMessageFlags":                   PidTagMessageFlags,
		"PidTagImportance":                     PidTagImportance,
		"PidTagRecipientType":                  PidTagRecipientType,
		"PidTagEmailAddress":                   PidTagEmailAddress,
		"PidTagAttachNumber":                   PidTagAttachNumber,
		"PidTagAttachMethod":                   PidTagAttachMethod,
		"PidTagAttachLongFilename":             PidTagAttachLongFilename,
		"PidTagAttachDataBinary":               PidTagAttachDataBinary,
		"PidTagContainerClass":                 PidTagContainerClass,
		"PidTagRowid":                          PidTagRowid,
	} {
		r.Register(tag.PropertyID, name)
	}
	return r
}

//Register names a tagged property id
func (r *Registry) Register(id uint16, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = name
}

//RegisterNamed names a named property
func (r *Registry) RegisterNamed(np NamedProperty, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[np] = name
}

//Load registers names from a config map of "0x3001: PidTagDisplayName" entries
func (r *Registry) Load(names map[string]string) error {
	for k, name := range names {
		id, err := strconv.ParseUint(k, 0, 16)
		if err != nil {
			return errors.Wrapf(err, "property id %q", k)
		}
		r.Register(uint16(id), name)
	}
	return nil
}

//TagName looks up a tagged property
func (r *Registry) TagName(tag PropertyTag) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.ids[tag.PropertyID]
	return name, ok
}

//NamedName looks up a named property
func (r *Registry) NamedName(np NamedProperty) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.named[np]
	return name, ok
}

//Describe returns the schema name of a tag, falling back to its hex form
func Describe(schema PropertySchema, tag PropertyTag, np *NamedProperty) string {
	if np != nil {
		if name, ok := schema.NamedName(*np); ok {
			return name
		}
		return np.String()
	}
	if name, ok := schema.TagName(tag); ok {
		return name
	}
	if name := MarkerName(tag.Uint32()); name != "" {
		return name
	}
	return fmt.Sprintf("0x%04X", tag.PropertyID)
}
