package protocol

import (
	"bytes"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeartbeatRequest(t *testing.T) {
	enc := NewEncoder()
	enc.WriteString("my-group")
	enc.WriteInt32(3)
	enc.WriteString("member-1")

	dec := NewDecoder(bytes.NewReader(enc.Bytes()))
	req, err := DecodeHeartbeatRequest(dec, 0)
	require.NoError(t, err)
	require.Equal(t, "my-group", req.GroupID)
	require.Equal(t, int32(3), req.GenerationID)
	require.Equal(t, "member-1", req.MemberID)
}

func TestDecodeJoinGroupRequestV5(t *testing.T) {
	enc := NewEncoder()
	enc.WriteString("g")
	enc.WriteInt32(30000)
	enc.WriteInt32(60000)
	enc.WriteString("m")
	enc.WriteNullableString(nil) // group instance id
	enc.WriteString("consumer")
	enc.WriteArrayLen(1)
	enc.WriteString("range")
	enc.WriteBytes([]byte("meta"))

	dec := NewDecoder(bytes.NewReader(enc.Bytes()))
	req, err := DecodeJoinGroupRequest(dec, 5)
	require.NoError(t, err)
	require.Equal(t, "g", req.GroupID)
	require.Equal(t, int32(30000), req.SessionTimeoutMs)
	require.Equal(t, "m", req.MemberID)
	require.Len(t, req.Protocols, 1)
	require.Equal(t, "range", req.Protocols[0].Name)
}

func TestVarIntRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 300, -300, 1 << 40, -(1 << 40)} {
		enc := NewEncoder()
		enc.WriteVarInt(v)

		dec := NewDecoder(bytes.NewReader(enc.Bytes()))
		got, err := dec.ReadVarInt()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestOffsetCommitErrorResponseMirrorsRequest(t *testing.T) {
	req := &OffsetCommitRequest{
		GroupID: "g",
		Topics: []OffsetCommitRequestTopic{
			{Name: "a", Partitions: []OffsetCommitRequestPartition{{Index: 0}, {Index: 3}}},
			{Name: "b", Partitions: []OffsetCommitRequestPartition{{Index: 1}}},
		},
	}

	resp := NewOffsetCommitErrorResponse(req, ErrNotCoordinator)
	require.Len(t, resp.Topics, 2)
	require.Len(t, resp.Topics[0].Partitions, 2)
	require.Equal(t, int32(3), resp.Topics[0].Partitions[1].Index)
	for _, topic := range resp.Topics {
		for _, p := range topic.Partitions {
			require.Equal(t, ErrNotCoordinator, p.ErrorCode)
		}
	}
}

func TestMakeEmptyDescribedGroup(t *testing.T) {
	g := MakeEmptyDescribedGroup("ghost", ErrNotCoordinator)
	require.Equal(t, "ghost", g.GroupID)
	require.Equal(t, ErrNotCoordinator, g.ErrorCode)
	require.Empty(t, g.Members)
}

func TestDecompressGzip(t *testing.T) {
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	_, err := w.Write([]byte("hello polylog"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := Decompress(CompressionGzip, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("hello polylog"), out)
}

func TestDecompressNoneIsPassthrough(t *testing.T) {
	data := []byte{1, 2, 3}
	out, err := Decompress(CompressionNone, data)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestBatchCodecShortBatch(t *testing.T) {
	require.Equal(t, CompressionNone, BatchCodec([]byte{1, 2, 3}))
}
