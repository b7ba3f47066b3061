package feed

import (
	"strings"

	"github.com/tidwall/gjson"
)

// parseClearinghouseState 从 clearinghouseState JSON 中提取指定币种的仓位。
// 地址无持仓时返回 Szi=0 的空仓更新（空仓也是一种权威状态）。
func parseClearinghouseState(address, coin string, state gjson.Result) PositionUpdate {
	update := PositionUpdate{
		Address: address,
		Coin:    coin,
		Time:    state.Get("time").Int(),
	}

	state.Get("assetPositions").ForEach(func(_, ap gjson.Result) bool {
		pos := ap.Get("position")
		if pos.Get("coin").String() != coin {
			return true
		}

		update.Szi = pos.Get("szi").Float()
		if v := pos.Get("entryPx"); v.Exists() && v.String() != "" {
			f := v.Float()
			update.EntryPx = &f
		}
		if v := pos.Get("liquidationPx"); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			f := v.Float()
			update.LiqPx = &f
		}
		if v := pos.Get("leverage.value"); v.Exists() {
			f := v.Float()
			update.Leverage = &f
		}
		return false
	})

	return update
}

// parseWebData2 解析 webData2 推送，提取目标币种仓位
func parseWebData2(address, coin string, data []byte) (PositionUpdate, bool) {
	root := gjson.ParseBytes(data)
	user := strings.ToLower(root.Get("user").String())
	if user != "" {
		address = user
	}

	state := root.Get("clearinghouseState")
	if !state.Exists() {
		return PositionUpdate{}, false
	}
	return parseClearinghouseState(address, coin, state), true
}

// parseUserFills 解析 userFills 推送。
// isSnapshot 为 true 表示订阅建立时的历史回放，交给上层按身份键去重。
func parseUserFills(coin string, data []byte) (string, []Fill, bool) {
	root := gjson.ParseBytes(data)
	address := strings.ToLower(root.Get("user").String())
	isSnapshot := root.Get("isSnapshot").Bool()

	var fills []Fill
	root.Get("fills").ForEach(func(_, f gjson.Result) bool {
		if f.Get("coin").String() != coin {
			return true
		}

		fill := Fill{
			Address:       address,
			Coin:          coin,
			Px:            f.Get("px").Float(),
			Sz:            f.Get("sz").Float(),
			StartPosition: f.Get("startPosition").Float(),
			Time:          f.Get("time").Int(),
			Dir:           f.Get("dir").String(),
			FeeToken:      f.Get("feeToken").String(),
			Hash:          f.Get("hash").String(),
			Tid:           f.Get("tid").Int(),
			Oid:           f.Get("oid").Int(),
			Crossed:       f.Get("crossed").Bool(),
		}

		// Hyperliquid 的 side 是 B/A
		switch f.Get("side").String() {
		case "B":
			fill.Side = SideBuy
		case "A":
			fill.Side = SideSell
		}

		if v := f.Get("closedPnl"); v.Exists() && v.String() != "" {
			pnl := v.Float()
			fill.ClosedPnl = &pnl
		}
		if v := f.Get("fee"); v.Exists() && v.String() != "" {
			fee := v.Float()
			fill.Fee = &fee
		}

		fills = append(fills, fill)
		return true
	})

	return address, fills, isSnapshot
}

// parseActiveAssetCtx 解析 activeAssetCtx 推送，提取标记价
func parseActiveAssetCtx(data []byte) (string, float64, bool) {
	root := gjson.ParseBytes(data)
	coin := root.Get("coin").String()
	mark := root.Get("ctx.markPx")
	if coin == "" || !mark.Exists() {
		return "", 0, false
	}
	return coin, mark.Float(), true
}
