package mapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertyTag(t *testing.T) {
	tag := TagFromUint32(0x65E20102)
	require.Equal(t, PidTagChangeKey, tag)
	require.Equal(t, uint32(0x65E20102), tag.Uint32())
	require.False(t, tag.IsNamed())
	require.False(t, tag.IsMultiValued())
	require.Equal(t, "0x65E20102", tag.String())

	require.True(t, PropertyTag{PtypMultipleBinary, 0x8001}.IsNamed())
	require.True(t, PropertyTag{PtypMultipleBinary, 0x8001}.IsMultiValued())

	cp, ok := PropertyTag{CodePageFlag | 1252, 0x0037}.CodePage()
	require.True(t, ok)
	require.Equal(t, uint16(1252), cp)
	require.False(t, PropertyTag{CodePageFlag | 1252, 0x0037}.IsMultiValued())
}

func TestMarkersAndDelimiters(t *testing.T) {
	require.True(t, IsMarker(StartMessage))
	require.True(t, IsMarker(IncrSyncGroupInfo))
	require.False(t, IsMarker(PidTagSubject.Uint32()))
	require.Equal(t, "IncrSyncStateEnd", MarkerName(IncrSyncStateEnd))

	require.True(t, IsDelimiter(0x40160003))
	require.True(t, IsDelimiter(MetaTagNewFXFolder.Uint32()))
	require.False(t, IsDelimiter(MetaTagDnPrefix.Uint32()))
	require.False(t, IsDelimiter(MetaTagIdsetGiven.Uint32()))
}

func TestGUID(t *testing.T) {
	g, err := ParseGUID("{00020329-0000-0000-C000-000000000046}")
	require.NoError(t, err)
	require.Equal(t, PSPublicStrings, g)
	require.Equal(t, byte(0x29), g[0])
	require.Equal(t, "00020329-0000-0000-c000-000000000046", g.String())

	a, b := NewGUID(), NewGUID()
	require.NotEqual(t, a, b)

	_, err = ParseGUID("zzz")
	require.Error(t, err)
}

func TestServerID(t *testing.T) {
	sid := ServerID{Ours: 1, FolderID: 0x0001000000000A01, MessageID: 0x0001000000000B02, Instance: 7}
	raw := sid.Marshal()
	require.Len(t, raw, 21)

	var out ServerID
	n, err := out.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, 21, n)
	require.Equal(t, sid, out)

	_, err = out.Unmarshal(raw[:20])
	require.ErrorIs(t, err, ErrServerIDSize)
}

func TestRegistry(t *testing.T) {
	r := DefaultSchema()
	require.Equal(t, "PidTagDisplayName", Describe(r, PidTagDisplayName, nil))
	require.Equal(t, "0x7FFF", Describe(r, PropertyTag{PtypInteger32, 0x7FFF}, nil))

	require.NoError(t, r.Load(map[string]string{"0x7FFF": "PidTagCustom"}))
	require.Equal(t, "PidTagCustom", Describe(r, PropertyTag{PtypInteger32, 0x7FFF}, nil))
	require.Error(t, r.Load(map[string]string{"nope": "x"}))

	np := NamedProperty{PropertySet: PSPublicStrings, Kind: KindName, Name: "Keywords"}
	require.Contains(t, Describe(r, PropertyTag{PtypString, 0x8000}, &np), "Keywords")
	r.RegisterNamed(np, "PidNameKeywords")
	require.Equal(t, "PidNameKeywords", Describe(r, PropertyTag{PtypString, 0x8000}, &np))
}
