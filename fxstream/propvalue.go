package fxstream

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/utils"
)

//Category groups property types by how their values are laid out in the stream
type Category int

//Value categories
const (
	CategoryInvalid Category = iota
	CategoryFixed
	CategoryVariable
	CategoryMultiFixed
	CategoryMultiVariable
)

//fixedSize returns the stream width of a fixed size type, PtypBoolean is 2 bytes here
func fixedSize(t uint16) int {
	switch t {
	case mapi.PtypInteger16, mapi.PtypBoolean:
		return 2
	case mapi.PtypInteger32, mapi.PtypFloating32, mapi.PtypErrorCode:
		return 4
	case mapi.PtypFloating64, mapi.PtypCurrency, mapi.PtypFloatingTime, mapi.PtypInteger64, mapi.PtypTime:
		return 8
	case mapi.PtypGUID:
		return 16
	}
	return 0
}

func isVariable(t uint16) bool {
	if t&mapi.CodePageFlag != 0 {
		return true
	}
	switch t {
	case mapi.PtypString, mapi.PtypString8, mapi.PtypBinary, mapi.PtypServerID, mapi.PtypObject:
		return true
	}
	return false
}

//CategoryOf classifies a tag. MetaTagIdsetGiven is declared as PtypInteger32 but carries a binary value.
func CategoryOf(tag mapi.PropertyTag) Category {
	if tag == mapi.MetaTagIdsetGiven {
		return CategoryVariable
	}
	t := tag.PropertyType
	if tag.IsMultiValued() {
		base := t &^ mapi.MultiValueFlag
		if fixedSize(base) > 0 {
			return CategoryMultiFixed
		}
		if isVariable(base) && base != mapi.PtypObject {
			return CategoryMultiVariable
		}
		return CategoryInvalid
	}
	if fixedSize(t) > 0 {
		return CategoryFixed
	}
	if isVariable(t) {
		return CategoryVariable
	}
	return CategoryInvalid
}

//PropValue is one property as carried in a FastTransfer stream.
//Exactly one of Fixed, Var or Multi is set, depending on the category of the tag.
type PropValue struct {
	Tag   mapi.PropertyTag
	Named *mapi.NamedProperty
	Fixed []byte
	Var   []byte
	Multi [][]byte
}

//PropList is an ordered list of properties
type PropList []PropValue

//Category of the value
func (v PropValue) Category() Category {
	return CategoryOf(v.Tag)
}

//Find returns the first property with the given id
func (pl PropList) Find(id uint16) (PropValue, bool) {
	for _, v := range pl {
		if v.Tag.PropertyID == id && v.Named == nil {
			return v, true
		}
	}
	return PropValue{}, false
}

func fixedValue(tag mapi.PropertyTag, b []byte) PropValue {
	return PropValue{Tag: tag, Fixed: b}
}

//Int16Value builds a PtypInteger16 property
func Int16Value(tag mapi.PropertyTag, v int16) PropValue {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return fixedValue(tag, b)
}

//Int32Value builds a PtypInteger32 (or PtypErrorCode) property
func Int32Value(tag mapi.PropertyTag, v uint32) PropValue {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return fixedValue(tag, b)
}

//Int64Value builds a PtypInteger64 property
func Int64Value(tag mapi.PropertyTag, v uint64) PropValue {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return fixedValue(tag, b)
}

//Float64Value builds a PtypFloating64 property
func Float64Value(tag mapi.PropertyTag, v float64) PropValue {
	return Int64Value(tag, math.Float64bits(v))
}

//BoolValue builds a PtypBoolean property, two bytes wide in a stream
func BoolValue(tag mapi.PropertyTag, v bool) PropValue {
	b := []byte{0x00, 0x00}
	if v {
		b[0] = 0x01
	}
	return fixedValue(tag, b)
}

//TimeValue builds a PtypTime property from a FILETIME
func TimeValue(tag mapi.PropertyTag, t time.Time) PropValue {
	return Int64Value(tag, ToFileTime(t))
}

//GUIDValue builds a PtypGuid property
func GUIDValue(tag mapi.PropertyTag, g mapi.GUID) PropValue {
	b := make([]byte, 16)
	copy(b, g[:])
	return fixedValue(tag, b)
}

//BinaryValue builds a variable size property holding raw bytes
func BinaryValue(tag mapi.PropertyTag, b []byte) PropValue {
	out := make([]byte, len(b))
	copy(out, b)
	return PropValue{Tag: tag, Var: out}
}

//StringValue builds a PtypString property with its null terminator
func StringValue(tag mapi.PropertyTag, s string) PropValue {
	return PropValue{Tag: tag, Var: utils.UniString(s)}
}

//String8Value builds a PtypString8 or code page string property
func String8Value(tag mapi.PropertyTag, s string) (PropValue, error) {
	cp, _ := tag.CodePage()
	b, err := utils.ToCodePage(cp, s)
	if err != nil {
		return PropValue{}, err
	}
	return PropValue{Tag: tag, Var: b}, nil
}

//MultiValue builds a multi-valued property from already encoded items
func MultiValue(tag mapi.PropertyTag, items ...[]byte) PropValue {
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = append([]byte(nil), item...)
	}
	return PropValue{Tag: tag, Multi: out}
}

//ErrWrongType is returned by the accessors when the value does not have the requested layout
var ErrWrongType = errors.New("property value has a different type")

//Uint16 reads a 2 byte value
func (v PropValue) Uint16() (uint16, error) {
	if len(v.Fixed) != 2 {
		return 0, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	return binary.LittleEndian.Uint16(v.Fixed), nil
}

//Uint32 reads a 4 byte value
func (v PropValue) Uint32() (uint32, error) {
	if len(v.Fixed) != 4 {
		return 0, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	return binary.LittleEndian.Uint32(v.Fixed), nil
}

//Uint64 reads an 8 byte value
func (v PropValue) Uint64() (uint64, error) {
	if len(v.Fixed) != 8 {
		return 0, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	return binary.LittleEndian.Uint64(v.Fixed), nil
}

//Bool reads a PtypBoolean
func (v PropValue) Bool() (bool, error) {
	if v.Tag.PropertyType != mapi.PtypBoolean || len(v.Fixed) != 2 {
		return false, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	return v.Fixed[0] != 0 || v.Fixed[1] != 0, nil
}

//Time reads a PtypTime
func (v PropValue) Time() (time.Time, error) {
	ft, err := v.Uint64()
	if err != nil {
		return time.Time{}, err
	}
	return FromFileTime(ft), nil
}

//GUID reads a PtypGuid
func (v PropValue) GUID() (mapi.GUID, error) {
	var g mapi.GUID
	if len(v.Fixed) != 16 {
		return g, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	copy(g[:], v.Fixed)
	return g, nil
}

//Bytes returns the raw bytes of a variable size value
func (v PropValue) Bytes() ([]byte, error) {
	if v.Category() != CategoryVariable {
		return nil, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	return v.Var, nil
}

//Str decodes a PtypString, PtypString8 or code page string
func (v PropValue) Str() (string, error) {
	switch {
	case v.Tag.PropertyType == mapi.PtypString:
		return utils.FromUnicode(v.Var)
	case v.Tag.PropertyType == mapi.PtypString8:
		return utils.FromCodePage(0, v.Var)
	}
	if cp, ok := v.Tag.CodePage(); ok {
		return utils.FromCodePage(cp, v.Var)
	}
	return "", errors.Wrapf(ErrWrongType, "%s", v.Tag)
}

//ServerID decodes a PtypServerId
func (v PropValue) ServerID() (mapi.ServerID, error) {
	var sid mapi.ServerID
	if v.Tag.PropertyType != mapi.PtypServerID {
		return sid, errors.Wrapf(ErrWrongType, "%s", v.Tag)
	}
	_, err := sid.Unmarshal(v.Var)
	return sid, err
}

//fileTimeOffset is the number of 100ns intervals between 1601-01-01 and the unix epoch
const fileTimeOffset = 116444736000000000

//ToFileTime converts a time to a Windows FILETIME
func ToFileTime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100 + fileTimeOffset)
}

//FromFileTime converts a Windows FILETIME to a UTC time
func FromFileTime(ft uint64) time.Time {
	n := int64(ft) - fileTimeOffset
	return time.Unix(n/1e7, (n%1e7)*100).UTC()
}
