package fxstream

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/sensepost/fxics/mapi"
	"github.com/sensepost/fxics/utils"
)

//AtomKind is the lexical class of a run of stream bytes
type AtomKind int

//Atom kinds. Only AtomVarValue may be split internally.
const (
	AtomMarker AtomKind = iota
	AtomPropTag
	AtomNamedInfo
	AtomFixed
	AtomLength
	AtomCount
	AtomVarValue
)

func (k AtomKind) String() string {
	switch k {
	case AtomMarker:
		return "marker"
	case AtomPropTag:
		return "propTag"
	case AtomNamedInfo:
		return "namedPropInfo"
	case AtomFixed:
		return "fixedValue"
	case AtomLength:
		return "length"
	case AtomCount:
		return "count"
	case AtomVarValue:
		return "varSizeValue"
	}
	return "unknown"
}

//Atom is one lexical unit of a stream
type Atom struct {
	Kind   AtomKind
	Offset int
	Len    int
}

//lexer reads atoms from a buffer. When atoms is non nil every atom read is recorded.
type lexer struct {
	buf   []byte
	opts  Options
	atoms *[]Atom
}

func (lx *lexer) emit(kind AtomKind, off, n int) {
	if lx.atoms != nil {
		*lx.atoms = append(*lx.atoms, Atom{Kind: kind, Offset: off, Len: n})
	}
}

//Lex splits a stream into atoms without applying the element grammar
func Lex(buf []byte, opts Options) ([]Atom, error) {
	atoms := []Atom{}
	lx := &lexer{buf: buf, opts: opts.normalize(), atoms: &atoms}
	pos := 0
	for pos < len(buf) {
		v, err := utils.PeekUint32(pos, buf)
		if err != nil {
			return nil, truncated(pos)
		}
		if mapi.IsMarker(v) {
			lx.emit(AtomMarker, pos, 4)
			pos += 4
			continue
		}
		if _, pos, err = lx.propValue(pos); err != nil {
			return nil, err
		}
	}
	return atoms, nil
}

//DecodePropValue reads one property value starting at pos and returns the position after it
func DecodePropValue(buf []byte, pos int, opts Options) (PropValue, int, error) {
	lx := &lexer{buf: buf, opts: opts.normalize()}
	return lx.propValue(pos)
}

func (lx *lexer) propValue(pos int) (PropValue, int, error) {
	var v PropValue
	start := pos
	tagv, pos, err := utils.ReadUint32(pos, lx.buf)
	if err != nil {
		return v, start, truncated(start)
	}
	lx.emit(AtomPropTag, start, 4)
	v.Tag = mapi.TagFromUint32(tagv)

	cat := CategoryOf(v.Tag)
	if cat == CategoryInvalid {
		return v, start, errors.Wrapf(ErrUnknownPropertyType, "offset %d: type 0x%04X", start, v.Tag.PropertyType)
	}
	if v.Tag.IsNamed() {
		var np mapi.NamedProperty
		if np, pos, err = lx.namedInfo(pos); err != nil {
			return v, start, err
		}
		v.Named = &np
	}

	valueType := v.Tag.PropertyType
	if v.Tag == mapi.MetaTagIdsetGiven {
		valueType = mapi.PtypBinary
	}
	switch cat {
	case CategoryFixed:
		v.Fixed, pos, err = lx.fixed(pos, fixedSize(valueType))
	case CategoryVariable:
		v.Var, pos, err = lx.variable(pos, valueType)
	case CategoryMultiFixed, CategoryMultiVariable:
		v.Multi, pos, err = lx.multi(pos, valueType&^mapi.MultiValueFlag, cat)
	}
	if err != nil {
		return v, start, err
	}
	return v, pos, nil
}

func (lx *lexer) namedInfo(pos int) (mapi.NamedProperty, int, error) {
	var np mapi.NamedProperty
	start := pos
	guid, pos, err := utils.ReadBytes(pos, 16, lx.buf)
	if err != nil {
		return np, start, truncated(start)
	}
	copy(np.PropertySet[:], guid)
	if np.Kind, pos, err = utils.ReadByte(pos, lx.buf); err != nil {
		return np, start, truncated(pos)
	}
	switch np.Kind {
	case mapi.KindDispID:
		if np.DispID, pos, err = utils.ReadUint32(pos, lx.buf); err != nil {
			return np, start, truncated(pos)
		}
	case mapi.KindName:
		end := -1
		for i := pos; i+1 < len(lx.buf); i += 2 {
			if lx.buf[i] == 0 && lx.buf[i+1] == 0 {
				end = i + 2
				break
			}
		}
		if end < 0 {
			return np, start, truncated(pos)
		}
		if np.Name, err = utils.FromUnicode(lx.buf[pos:end]); err != nil {
			return np, start, malformed(pos, "named property name: %v", err)
		}
		pos = end
	default:
		return np, start, errors.Wrapf(ErrInvalidNameKind, "offset %d: kind 0x%02X", pos-1, np.Kind)
	}
	lx.emit(AtomNamedInfo, start, pos-start)
	return np, pos, nil
}

func (lx *lexer) fixed(pos, size int) ([]byte, int, error) {
	b, next, err := utils.ReadBytes(pos, size, lx.buf)
	if err != nil {
		return nil, pos, truncated(pos)
	}
	lx.emit(AtomFixed, pos, size)
	return b, next, nil
}

func (lx *lexer) variable(pos int, t uint16) ([]byte, int, error) {
	start := pos
	length, pos, err := utils.ReadUint32(pos, lx.buf)
	if err != nil {
		return nil, start, truncated(start)
	}
	lx.emit(AtomLength, start, 4)
	if length == 0 {
		if lx.opts.Strict {
			return nil, start, malformed(start, "zero length value")
		}
		return []byte{}, pos, nil
	}
	if uint64(length) > uint64(len(lx.buf)-pos) {
		return nil, start, malformed(start, "length %d exceeds the %d remaining bytes", length, len(lx.buf)-pos)
	}
	b, next, _ := utils.ReadBytes(pos, int(length), lx.buf)
	if err := checkString(t, b); err != nil {
		return nil, start, malformed(pos, "%v", err)
	}
	lx.emit(AtomVarValue, pos, int(length))
	return b, next, nil
}

func (lx *lexer) multi(pos int, base uint16, cat Category) ([][]byte, int, error) {
	start := pos
	count, pos, err := utils.ReadUint32(pos, lx.buf)
	if err != nil {
		return nil, start, truncated(start)
	}
	lx.emit(AtomCount, start, 4)

	//every item takes at least its size or its length prefix
	least := 4
	if cat == CategoryMultiFixed {
		least = fixedSize(base)
	}
	if uint64(count)*uint64(least) > uint64(len(lx.buf)-pos) {
		return nil, start, malformed(start, "count %d exceeds the remaining bytes", count)
	}
	items := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var item []byte
		if cat == CategoryMultiFixed {
			item, pos, err = lx.fixed(pos, least)
		} else {
			item, pos, err = lx.variable(pos, base)
		}
		if err != nil {
			return nil, start, err
		}
		items = append(items, item)
	}
	return items, pos, nil
}

func checkString(t uint16, b []byte) error {
	switch {
	case t == mapi.PtypString:
		if len(b)%2 != 0 || len(b) < 2 || !bytes.HasSuffix(b, []byte{0x00, 0x00}) {
			return errors.New("PtypString must be an even number of bytes ending in 00 00")
		}
	case t == mapi.PtypString8, t&mapi.CodePageFlag != 0:
		if b[len(b)-1] != 0x00 {
			return errors.New("8-bit string must end in 00")
		}
	}
	return nil
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

//Marshal serializes a single property value
func (v PropValue) Marshal() ([]byte, error) {
	return appendPropValue(nil, v)
}

func appendPropValue(dst []byte, v PropValue) ([]byte, error) {
	cat := v.Category()
	if cat == CategoryInvalid {
		return nil, errors.Wrapf(ErrUnknownPropertyType, "type 0x%04X", v.Tag.PropertyType)
	}
	dst = appendUint32(dst, v.Tag.Uint32())
	if v.Tag.IsNamed() != (v.Named != nil) {
		return nil, errors.Errorf("property %s: named info must be present exactly for ids >= 0x8000", v.Tag)
	}
	if v.Named != nil {
		dst = append(dst, v.Named.PropertySet[:]...)
		dst = append(dst, v.Named.Kind)
		switch v.Named.Kind {
		case mapi.KindDispID:
			dst = appendUint32(dst, v.Named.DispID)
		case mapi.KindName:
			dst = append(dst, utils.UniString(v.Named.Name)...)
		default:
			return nil, errors.Wrapf(ErrInvalidNameKind, "kind 0x%02X", v.Named.Kind)
		}
	}

	base := v.Tag.PropertyType &^ mapi.MultiValueFlag
	switch cat {
	case CategoryFixed:
		if len(v.Fixed) != fixedSize(v.Tag.PropertyType) {
			return nil, errors.Wrapf(ErrWrongType, "%s: %d byte value", v.Tag, len(v.Fixed))
		}
		dst = append(dst, v.Fixed...)
	case CategoryVariable:
		dst = appendUint32(dst, uint32(len(v.Var)))
		dst = append(dst, v.Var...)
	case CategoryMultiFixed:
		dst = appendUint32(dst, uint32(len(v.Multi)))
		for _, item := range v.Multi {
			if len(item) != fixedSize(base) {
				return nil, errors.Wrapf(ErrWrongType, "%s: %d byte item", v.Tag, len(item))
			}
			dst = append(dst, item...)
		}
	case CategoryMultiVariable:
		dst = appendUint32(dst, uint32(len(v.Multi)))
		for _, item := range v.Multi {
			dst = appendUint32(dst, uint32(len(item)))
			dst = append(dst, item...)
		}
	}
	return dst, nil
}
