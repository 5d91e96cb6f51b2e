package pcl

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/mapi"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	g1 = mapi.MustParseGUID("{a1000000-0000-0000-0000-000000000001}")
	g2 = mapi.MustParseGUID("{b2000000-0000-0000-0000-000000000002}")
)

func xid(ns mapi.GUID, local ...byte) XID {
	return XID{Namespace: ns, LocalID: local}
}

func TestScenarioSuperset(t *testing.T) {
	a := PCL{xid(g1, 0x01)}
	b := PCL{xid(g1, 0x01), xid(g1, 0x02)}
	require.Equal(t, BIncludesA, Compare(a, b))
	require.Equal(t, AIncludesB, Compare(b, a))
	require.Equal(t, "BIncludesA", Compare(a, b).String())
}

func TestCompare(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b PCL
		want Relation
	}{
		{"equal", PCL{xid(g1, 0, 5)}, PCL{xid(g1, 0, 5)}, BIncludesA},
		{"both empty", nil, nil, BIncludesA},
		{"newer counter", PCL{xid(g1, 0, 6)}, PCL{xid(g1, 0, 5)}, AIncludesB},
		{"older counter", PCL{xid(g1, 0, 4)}, PCL{xid(g1, 0, 5)}, BIncludesA},
		{"extra namespace", PCL{xid(g1, 5), xid(g2, 1)}, PCL{xid(g1, 5)}, AIncludesB},
		{"counter is numeric", PCL{xid(g1, 1, 0)}, PCL{xid(g1, 0, 0xFF)}, AIncludesB},
		{"diverged", PCL{xid(g1, 6), xid(g2, 1)}, PCL{xid(g1, 7), xid(g2, 0)}, Conflict},
		{"disjoint namespaces", PCL{xid(g1, 1)}, PCL{xid(g2, 1)}, Conflict},
	} {
		require.Equal(t, tc.want, Compare(tc.a, tc.b), tc.name)
	}
}

func TestMergeIsSuccessor(t *testing.T) {
	a := PCL{xid(g1, 6), xid(g2, 1)}
	b := PCL{xid(g1, 7), xid(g2, 0)}
	require.Equal(t, Conflict, Compare(a, b))

	x, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, PCL{xid(g1, 7), xid(g2, 1)}, x)
	require.True(t, Includes(x, a))
	require.True(t, Includes(x, b))
	require.Equal(t, AIncludesB, Compare(x, a))
	require.Equal(t, AIncludesB, Compare(x, b))

	_, err = Merge(PCL{xid(g1, 1)}, PCL{xid(g1, 0, 2)})
	require.ErrorIs(t, err, ErrInvalidXID)
}

func TestCodec(t *testing.T) {
	p := PCL{xid(g2, 0, 0, 0, 0, 0, 9), xid(g1, 0, 0, 0, 0, 0x12, 0x34)}
	buf, err := p.Encode()
	require.NoError(t, err)
	require.Len(t, buf, 2*23)
	require.Equal(t, byte(22), buf[0])
	require.Equal(t, g1[:], buf[1:17])

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, PCL{p[1], p[0]}, got)

	_, err = Decode(buf[:30])
	require.ErrorIs(t, err, ErrTruncated)

	_, err = Decode(append([]byte{16}, g1[:]...))
	require.ErrorIs(t, err, ErrInvalidXID)
	_, err = Decode(append([]byte{25}, make([]byte, 25)...))
	require.ErrorIs(t, err, ErrInvalidXID)

	//one namespace, two local id lengths
	mixed := append(append([]byte{17}, g1[:]...), 0x01)
	mixed = append(append(append(mixed, 18), g1[:]...), 0x00, 0x02)
	_, err = Decode(mixed)
	require.ErrorIs(t, err, ErrInvalidXID)

	_, err = PCL{xid(g1)}.Encode()
	require.ErrorIs(t, err, ErrInvalidXID)

	empty, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestDecodeUnsorted(t *testing.T) {
	sized := func(x XID) []byte {
		return append([]byte{byte(x.Size())}, x.Marshal()...)
	}
	buf := append(sized(xid(g2, 0, 0, 0, 0, 0, 9)), sized(xid(g1, 0, 0, 0, 0, 0, 4))...)

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrUnsorted)

	core, logs := observer.New(zap.WarnLevel)
	opts := idset.DefaultOptions().Lenient()
	opts.Logger = zap.New(core)
	got, err := DecodeWith(buf, opts)
	require.NoError(t, err)
	require.Equal(t, PCL{xid(g1, 0, 0, 0, 0, 0, 4), xid(g2, 0, 0, 0, 0, 0, 9)}, got)
	require.Equal(t, 1, logs.Len())

	//a namespace listed twice in a row is still sorted
	twice := append(sized(xid(g1, 0x01)), sized(xid(g1, 0x02))...)
	got, err = Decode(twice)
	require.NoError(t, err)
	require.Equal(t, PCL{xid(g1, 0x01), xid(g1, 0x02)}, got)
}

func TestChangeKey(t *testing.T) {
	cn := CN{ReplicaID: 1, Counter: idset.GLOBCNTFromUint64(0x1234)}
	require.Equal(t, cn, ParseCN(cn.Uint64()))

	key := cn.XID(g1)
	parsed, err := ParseXID(key.Marshal())
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	back, err := parsed.ChangeNumber(1)
	require.NoError(t, err)
	require.Equal(t, cn, back)

	_, err = xid(g1, 1).ChangeNumber(1)
	require.ErrorIs(t, err, ErrInvalidXID)
	_, err = ParseXID(g1[:])
	require.ErrorIs(t, err, ErrInvalidXID)
}

func TestIdempotenceFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 6)
	namespaces := []mapi.GUID{g1, g2, mapi.MustParseGUID("{c3000000-0000-0000-0000-000000000003}")}
	for i := 0; i < 200; i++ {
		var counters []uint32
		f.Fuzz(&counters)
		var p PCL
		for k, c := range counters {
			cn := CN{ReplicaID: 1, Counter: idset.GLOBCNTFromUint64(uint64(c))}
			p = append(p, cn.XID(namespaces[k%len(namespaces)]))
		}

		require.True(t, Includes(p, p))
		require.Equal(t, BIncludesA, Compare(p, p))

		m, err := Merge(p, p)
		require.NoError(t, err)
		require.Equal(t, p.Compact(), m)
		require.Equal(t, BIncludesA, Compare(m, p))
		require.Equal(t, BIncludesA, Compare(p, m))

		buf, err := m.Encode()
		require.NoError(t, err)
		back, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, m, back)
	}
}
