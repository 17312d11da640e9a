package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rizkyandriawan/polylog/internal/protocol"
)

func TestParseAddr(t *testing.T) {
	host, port := parseAddr("broker-1:9095")
	require.Equal(t, "broker-1", host)
	require.Equal(t, int32(9095), port)

	host, port = parseAddr(":9092")
	require.Equal(t, "localhost", host)
	require.Equal(t, int32(9092), port)

	host, port = parseAddr("garbage")
	require.Equal(t, "localhost", host)
	require.Equal(t, int32(9092), port)
}

func TestApiNameCoversGroupAPIs(t *testing.T) {
	require.Equal(t, "join_group", apiName(protocol.APIKeyJoinGroup))
	require.Equal(t, "offset_commit", apiName(protocol.APIKeyOffsetCommit))
	require.Equal(t, "delete_groups", apiName(protocol.APIKeyDeleteGroups))
	require.Equal(t, "txn_offset_commit", apiName(protocol.APIKeyTxnOffsetCommit))
	require.Equal(t, "api_99", apiName(99))
}
