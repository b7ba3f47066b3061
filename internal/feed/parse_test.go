package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const clearinghouseJSON = `{
	"assetPositions": [
		{
			"position": {
				"coin": "BTC",
				"szi": "0.5",
				"entryPx": "64000.0",
				"liquidationPx": "51200.0",
				"leverage": {"type": "cross", "value": 10},
				"unrealizedPnl": "250.0"
			},
			"type": "oneWay"
		},
		{
			"position": {
				"coin": "ETH",
				"szi": "-2.0",
				"entryPx": "3000.0",
				"liquidationPx": null,
				"leverage": {"type": "cross", "value": 5}
			},
			"type": "oneWay"
		}
	],
	"time": 1756200000000
}`

func TestParseClearinghouseState(t *testing.T) {
	update := parseClearinghouseState("0xabc", "BTC", gjson.Parse(clearinghouseJSON))

	assert.Equal(t, "0xabc", update.Address)
	assert.Equal(t, "BTC", update.Coin)
	assert.Equal(t, int64(1756200000000), update.Time)
	assert.Equal(t, 0.5, update.Szi)
	require.NotNil(t, update.EntryPx)
	assert.Equal(t, 64000.0, *update.EntryPx)
	require.NotNil(t, update.LiqPx)
	assert.Equal(t, 51200.0, *update.LiqPx)
	require.NotNil(t, update.Leverage)
	assert.Equal(t, 10.0, *update.Leverage)
}

func TestParseClearinghouseState_NullLiqPx(t *testing.T) {
	update := parseClearinghouseState("0xabc", "ETH", gjson.Parse(clearinghouseJSON))

	assert.Equal(t, -2.0, update.Szi)
	assert.Nil(t, update.LiqPx)
}

func TestParseClearinghouseState_NoPosition(t *testing.T) {
	update := parseClearinghouseState("0xabc", "SOL", gjson.Parse(clearinghouseJSON))

	// 无持仓 = 空仓，不是错误
	assert.Equal(t, 0.0, update.Szi)
	assert.Nil(t, update.EntryPx)
	assert.Nil(t, update.LiqPx)
}

func TestParseWebData2(t *testing.T) {
	data := `{"user": "0xABCDEF", "clearinghouseState": ` + clearinghouseJSON + `}`

	update, ok := parseWebData2("", "BTC", []byte(data))
	require.True(t, ok)
	assert.Equal(t, "0xabcdef", update.Address)
	assert.Equal(t, 0.5, update.Szi)
}

func TestParseWebData2_MissingState(t *testing.T) {
	_, ok := parseWebData2("0xabc", "BTC", []byte(`{"user": "0xabc"}`))
	assert.False(t, ok)
}

func TestParseUserFills(t *testing.T) {
	data := `{
		"user": "0xABC",
		"isSnapshot": false,
		"fills": [
			{
				"coin": "BTC",
				"px": "64100.0",
				"sz": "0.25",
				"side": "B",
				"time": 1756200001000,
				"startPosition": "0.5",
				"dir": "Open Long",
				"closedPnl": "0.0",
				"hash": "0xdeadbeef",
				"oid": 77001,
				"crossed": true,
				"fee": "3.2",
				"tid": 990011,
				"feeToken": "USDC"
			},
			{
				"coin": "ETH",
				"px": "3000.0",
				"sz": "1.0",
				"side": "A",
				"time": 1756200002000,
				"startPosition": "2.0",
				"dir": "Close Long",
				"hash": "0xfeedface",
				"oid": 77002,
				"tid": 990012
			}
		]
	}`

	address, fills, isSnapshot := parseUserFills("BTC", []byte(data))
	assert.Equal(t, "0xabc", address)
	assert.False(t, isSnapshot)

	// 非目标币种被过滤
	require.Len(t, fills, 1)

	f := fills[0]
	assert.Equal(t, SideBuy, f.Side)
	assert.Equal(t, 64100.0, f.Px)
	assert.Equal(t, 0.25, f.Sz)
	assert.Equal(t, 0.5, f.StartPosition)
	assert.Equal(t, int64(1756200001000), f.Time)
	assert.Equal(t, "0xdeadbeef", f.Hash)
	assert.Equal(t, int64(990011), f.Tid)
	assert.Equal(t, int64(77001), f.Oid)
	assert.True(t, f.Crossed)
	require.NotNil(t, f.Fee)
	assert.Equal(t, 3.2, *f.Fee)
	assert.Equal(t, "USDC", f.FeeToken)
}

func TestParseUserFills_Snapshot(t *testing.T) {
	data := `{"user": "0xabc", "isSnapshot": true, "fills": []}`

	_, fills, isSnapshot := parseUserFills("BTC", []byte(data))
	assert.True(t, isSnapshot)
	assert.Empty(t, fills)
}

func TestParseActiveAssetCtx(t *testing.T) {
	data := `{"coin": "BTC", "ctx": {"markPx": "64250.5", "funding": "0.0000125"}}`

	coin, px, ok := parseActiveAssetCtx([]byte(data))
	require.True(t, ok)
	assert.Equal(t, "BTC", coin)
	assert.Equal(t, 64250.5, px)
}

func TestParseActiveAssetCtx_Invalid(t *testing.T) {
	_, _, ok := parseActiveAssetCtx([]byte(`{"ctx": {}}`))
	assert.False(t, ok)
}
