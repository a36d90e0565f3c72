package book

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kucoin-depth-viewer/apperrors"
)

func TestDecodeDepthMessage(t *testing.T) {
	raw := []byte(`{"type":"message","topic":"/contractMarket/level2Depth5:ETHUSDTM","subject":"level2",` +
		`"data":{"asks":[["1801.50",3],["1802",10]],"bids":[["1800.00",7],["1799.5",1]],"timestamp":1700000000123}}`)

	event, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, "/contractMarket/level2Depth5:ETHUSDTM", event.Topic)
	assert.Equal(t, "level2", event.Subject)
	assert.Equal(t, time.UnixMilli(1700000000123), event.Timestamp)

	require.Len(t, event.Snapshot.Asks, 2)
	assert.Equal(t, "1801.5", event.Snapshot.Asks[0].Price.String())
	assert.Equal(t, int64(3), event.Snapshot.Asks[0].Size)
	assert.Equal(t, "1802", event.Snapshot.Asks[1].Price.String())

	require.Len(t, event.Snapshot.Bids, 2)
	assert.Equal(t, "1800", event.Snapshot.Bids[0].Price.String())
	assert.Equal(t, int64(7), event.Snapshot.Bids[0].Size)
}

func TestDecodeEmptySides(t *testing.T) {
	event, err := Decode([]byte(`{"type":"message","data":{"asks":[],"bids":[]}}`))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Empty(t, event.Snapshot.Asks)
	assert.Empty(t, event.Snapshot.Bids)
	assert.True(t, event.Timestamp.IsZero())
}

func TestDecodeIgnoresControlFrames(t *testing.T) {
	frames := []string{
		`{"type":"ack"}`,
		`{"id":"1545910660740","type":"ack"}`,
		`{"id":"hQvf8jkno","type":"welcome"}`,
		`{"id":"7","type":"pong"}`,
		`{"id":"1","type":"error","code":401,"data":"token is invalid"}`,
		`{}`,
	}
	for _, f := range frames {
		event, err := Decode([]byte(f))
		assert.NoError(t, err, f)
		assert.Nil(t, event, f)
	}
}

func TestDecodeMalformedEntries(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantSide  string
		wantIndex int
	}{
		{name: "non-numeric ask price", raw: `{"type":"message","data":{"asks":[["abc",5]],"bids":[]}}`, wantSide: SideAsk, wantIndex: 0},
		{name: "ask price as number", raw: `{"type":"message","data":{"asks":[["1.0",1],[1801.5,5]],"bids":[]}}`, wantSide: SideAsk, wantIndex: 1},
		{name: "bid wrong arity", raw: `{"type":"message","data":{"asks":[],"bids":[["1800.00",7],["1799",1,2]]}}`, wantSide: SideBid, wantIndex: 1},
		{name: "bid fractional size", raw: `{"type":"message","data":{"asks":[],"bids":[["1800.00",7.5]]}}`, wantSide: SideBid, wantIndex: 0},
		{name: "ask size as string", raw: `{"type":"message","data":{"asks":[["1801.50","3"]],"bids":[]}}`, wantSide: SideAsk, wantIndex: 0},
		{name: "bid size not a number", raw: `{"type":"message","data":{"asks":[],"bids":[["1800.00",true]]}}`, wantSide: SideBid, wantIndex: 0},
		{name: "negative size", raw: `{"type":"message","data":{"asks":[["1801",-1]],"bids":[]}}`, wantSide: SideAsk, wantIndex: 0},
		{name: "level not an array", raw: `{"type":"message","data":{"asks":[{"price":"1"}],"bids":[]}}`, wantSide: SideAsk, wantIndex: 0},
		{name: "missing asks", raw: `{"type":"message","data":{"bids":[]}}`, wantSide: SideAsk, wantIndex: -1},
		{name: "bids not an array", raw: `{"type":"message","data":{"asks":[],"bids":"none"}}`, wantSide: SideBid, wantIndex: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, event)

			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.Decode, appErr.Kind)
			assert.Equal(t, tt.wantSide, appErr.Side)
			assert.Equal(t, tt.wantIndex, appErr.Index)
		})
	}
}

func TestDecodeInvalidFrames(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"message"`,
		`{"type":"message"}`,
		`{"type":"message","data":null}`,
		`{"type":"message","data":[1,2]}`,
	} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, apperrors.Is(err, apperrors.Decode), raw)
	}
}
