package mapi

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sensepost/fxics/utils"
)

//PropertyTag struct
type PropertyTag struct {
	PropertyType uint16
	PropertyID   uint16
}

//TagFromUint32 splits a 4 byte tag as read from the wire, the id is held in the high word
func TagFromUint32(v uint32) PropertyTag {
	return PropertyTag{PropertyType: uint16(v), PropertyID: uint16(v >> 16)}
}

//Uint32 returns the tag in its 4 byte form
func (tag PropertyTag) Uint32() uint32 {
	return uint32(tag.PropertyID)<<16 | uint32(tag.PropertyType)
}

//IsNamed is true for ids in the named property range
func (tag PropertyTag) IsNamed() bool {
	return tag.PropertyID >= NamedPropertyBase
}

//IsMultiValued is true for the 0x1000 family of types
func (tag PropertyTag) IsMultiValued() bool {
	return tag.PropertyType&CodePageFlag == 0 && tag.PropertyType&MultiValueFlag != 0
}

//CodePage returns the code page of a code page string type
func (tag PropertyTag) CodePage() (uint16, bool) {
	if tag.PropertyType&CodePageFlag == 0 {
		return 0, false
	}
	return tag.PropertyType &^ CodePageFlag, true
}

func (tag PropertyTag) String() string {
	return fmt.Sprintf("0x%08X", tag.Uint32())
}

//GUID is held in the .NET byte order that is used on the wire
type GUID [16]byte

//ParseGUID reads a GUID in its textual form
func ParseGUID(s string) (GUID, error) {
	var g GUID
	array, err := utils.GUIDToByteArray(s)
	if err != nil {
		return g, err
	}
	copy(g[:], array)
	return g, nil
}

//MustParseGUID is ParseGUID for package level constants, it panics on bad input
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

//NewGUID returns a random GUID
func NewGUID() GUID {
	var g GUID
	copy(g[:], utils.UUIDToByteArray(uuid.New()))
	return g
}

func (g GUID) String() string {
	return utils.ByteArrayToUUID(g[:]).String()
}

//Compare orders GUIDs by their wire bytes
func (g GUID) Compare(o GUID) int {
	return bytes.Compare(g[:], o[:])
}

//Well known property sets
var (
	PSPublicStrings   = MustParseGUID("00020329-0000-0000-C000-000000000046")
	PSMapi            = MustParseGUID("00020328-0000-0000-C000-000000000046")
	PSETIDCommon      = MustParseGUID("00062008-0000-0000-C000-000000000046")
	PSETIDAppointment = MustParseGUID("00062002-0000-0000-C000-000000000046")
)

//NamedProperty identifies a property in the named range, either by DispID or by Name
type NamedProperty struct {
	PropertySet GUID
	Kind        byte
	DispID      uint32
	Name        string
}

func (np NamedProperty) String() string {
	if np.Kind == KindName {
		return fmt.Sprintf("%s:%q", np.PropertySet, np.Name)
	}
	return fmt.Sprintf("%s:0x%04X", np.PropertySet, np.DispID)
}

//ServerID is the decoded form of a PtypServerId value
type ServerID struct {
	Ours      byte
	FolderID  uint64
	MessageID uint64
	Instance  uint32
}

//ErrServerIDSize is returned when a PtypServerId value is not 21 bytes long
var ErrServerIDSize = errors.New("server id must be 21 bytes")

//Unmarshal function
func (sid *ServerID) Unmarshal(resp []byte) (int, error) {
	var pos int
	var err error
	if len(resp) != 21 {
		return 0, ErrServerIDSize
	}
	if sid.Ours, pos, err = utils.ReadByte(pos, resp); err != nil {
		return pos, err
	}
	if sid.FolderID, pos, err = utils.ReadUint64(pos, resp); err != nil {
		return pos, err
	}
	if sid.MessageID, pos, err = utils.ReadUint64(pos, resp); err != nil {
		return pos, err
	}
	if sid.Instance, pos, err = utils.ReadUint32(pos, resp); err != nil {
		return pos, err
	}
	return pos, nil
}

//Marshal turn ServerID into Bytes
func (sid ServerID) Marshal() []byte {
	out := make([]byte, 21)
	out[0] = sid.Ours
	utils.PutUint64(out[1:], sid.FolderID)
	utils.PutUint64(out[9:], sid.MessageID)
	utils.PutUint32(out[17:], sid.Instance)
	return out
}
