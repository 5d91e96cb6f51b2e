package fxstream

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type statusSource struct {
	calls  int
	status []TransferStatus
	sizes  []int
}

func (s *statusSource) GetBuffer(ctx context.Context, max int) ([]byte, TransferStatus, error) {
	s.sizes = append(s.sizes, max)
	st := s.status[s.calls]
	s.calls++
	if st == TransferNoRoom {
		return nil, st, nil
	}
	return []byte{byte(s.calls)}, st, nil
}

func TestCollect(t *testing.T) {
	buf := encodeTree(t, contentsSyncTree(t))
	for _, max := range []int{2, 64, BufferSizeServerChoice} {
		src, err := NewStreamSource(buf, DefaultOptions())
		require.NoError(t, err)
		got, err := Collect(context.Background(), src, max)
		require.NoError(t, err, "max %d", max)
		require.Equal(t, buf, got)
	}
}

func TestCollectStatuses(t *testing.T) {
	src := &statusSource{status: []TransferStatus{TransferPartial, TransferNoRoom, TransferPartial, TransferDone}}
	got, err := Collect(context.Background(), src, 16)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 3, 4}, got)
	require.Equal(t, []int{16, 16, 32, 32}, src.sizes)

	src = &statusSource{status: []TransferStatus{TransferPartial, TransferError}}
	_, err = Collect(context.Background(), src, 16)
	require.ErrorIs(t, err, ErrTransferFailed)

	src = &statusSource{status: []TransferStatus{TransferNoRoom}}
	_, err = Collect(context.Background(), src, MaxBufferSize)
	require.ErrorIs(t, err, ErrTransferFailed)

	//a zero size would never grow past NoRoom
	for _, max := range []int{0, -1} {
		src = &statusSource{status: []TransferStatus{TransferNoRoom}}
		_, err = Collect(context.Background(), src, max)
		require.ErrorIs(t, err, ErrTransferFailed)
		require.Zero(t, src.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src = &statusSource{status: []TransferStatus{TransferDone}}
	_, err = Collect(ctx, src, 16)
	require.True(t, errors.Is(err, context.Canceled))
	require.Zero(t, src.calls)
}

func TestUpload(t *testing.T) {
	buf := encodeTree(t, messageContentTree(t))
	sink := &BufferedSink{}
	require.NoError(t, Upload(context.Background(), sink, buf, 64, DefaultOptions()))
	require.Equal(t, buf, sink.Bytes())
	require.Greater(t, len(sink.Chunks), 1)
	for _, c := range sink.Chunks {
		require.LessOrEqual(t, len(c), 64)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Upload(ctx, &BufferedSink{}, buf, 64, DefaultOptions())
	require.True(t, errors.Is(err, context.Canceled))
}

func TestTransferStatusNames(t *testing.T) {
	require.Equal(t, "NoRoom", TransferNoRoom.String())
	require.Equal(t, "Unknown", TransferStatus(9).String())
}
