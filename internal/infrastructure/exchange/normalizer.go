package exchange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"xprice/internal/domain"
)

// tickerMsg 24hrTicker / miniTicker 公共字段
// 大写字段必须声明，否则 encoding/json 会按大小写不敏感匹配到小写字段上
type tickerMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	CloseTime int64  `json:"C"`
	Bid       string `json:"b"`
	BidQty    string `json:"B"`
	Ask       string `json:"a"`
	AskQty    string `json:"A"`
}

// combined stream: {"stream":"btcusdt@ticker","data":{...}}
type combinedMsg struct {
	Stream string     `json:"stream"`
	Data   *tickerMsg `json:"data"`
}

// TickerNormalizer 把行情推送解析为 NormalizedTick
type TickerNormalizer struct {
	assets *domain.Assets
}

func NewTickerNormalizer(assets *domain.Assets) *TickerNormalizer {
	if assets == nil {
		assets = domain.DefaultAssets()
	}
	return &TickerNormalizer{assets: assets}
}

// Normalize 支持单条、combined stream 和数组三种形态。
// 订阅回执等没有 symbol 的消息返回空结果；数组中的坏条目跳过并合并报错
func (n *TickerNormalizer) Normalize(b []byte) ([]domain.NormalizedTick, error) {
	b = BytesTrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}

	if b[0] == '[' {
		var msgs []tickerMsg
		if err := ParseJSON(b, &msgs); err != nil {
			return nil, err
		}
		out := make([]domain.NormalizedTick, 0, len(msgs))
		var errs []error
		for _, m := range msgs {
			t, ok, err := n.normalizeOne(m)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				out = append(out, t)
			}
		}
		return out, errors.Join(errs...)
	}

	var env combinedMsg
	if err := ParseJSON(b, &env); err != nil {
		return nil, err
	}
	var m tickerMsg
	if env.Data != nil {
		m = *env.Data
	} else if err := ParseJSON(b, &m); err != nil {
		return nil, err
	}

	t, ok, err := n.normalizeOne(m)
	if err != nil || !ok {
		return nil, err
	}
	return []domain.NormalizedTick{t}, nil
}

func (n *TickerNormalizer) normalizeOne(m tickerMsg) (domain.NormalizedTick, bool, error) {
	sym := strings.ToUpper(strings.TrimSpace(m.Symbol))
	if sym == "" {
		return domain.NormalizedTick{}, false, nil
	}
	pxs := strings.TrimSpace(m.Last)
	if pxs == "" {
		return domain.NormalizedTick{}, false, fmt.Errorf("%w: %s missing last price", domain.ErrMalformedPayload, sym)
	}
	px, err := decimal.NewFromString(pxs)
	if err != nil {
		return domain.NormalizedTick{}, false, fmt.Errorf("%w: %s last price %q", domain.ErrMalformedPayload, sym, pxs)
	}

	t, err := n.assets.NewNormalizedTick(sym, px)
	if err != nil {
		return domain.NormalizedTick{}, false, err
	}
	return t, true, nil
}
