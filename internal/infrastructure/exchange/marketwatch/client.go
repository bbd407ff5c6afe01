package marketwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"xprice/internal/domain"
	"xprice/internal/infrastructure/exchange"
)

const marketWatchPath = "/api/v3/spot/market_watch"

// Client 现货 market_watch 接口：单个交易对参考价 + 全量列表
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "http" }

type response struct {
	Data []domain.MarketPrice `json:"data"`
}

// QuerySymbol VNST 交易对按 VNDC 查询；只支持 VNDC / USDT 计价
func QuerySymbol(base, quote string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(base + quote))
	if strings.HasSuffix(symbol, domain.AssetVNST) {
		symbol = strings.TrimSuffix(symbol, domain.AssetVNST) + domain.AssetVNDC
	}
	if !strings.HasSuffix(symbol, domain.AssetVNDC) && !strings.HasSuffix(symbol, domain.AssetUSDT) {
		return "", fmt.Errorf("%w: %s not queryable", domain.ErrInvalidQuoteAsset, symbol)
	}
	return symbol, nil
}

// MarketPrice 查询一个交易对，没有数据时返回 domain.ErrPriceUnavailable
func (c *Client) MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error) {
	symbol, err := QuerySymbol(base, quote)
	if err != nil {
		return nil, err
	}

	list, err := c.get(ctx, url.Values{"symbol": {symbol}}.Encode())
	if err != nil {
		return nil, err
	}
	if len(list) == 0 || !list[0].Valid() {
		return nil, fmt.Errorf("%s market price: %w", symbol, domain.ErrPriceUnavailable)
	}
	m := list[0]
	return &m, nil
}

// MarketWatch 全量列表，用于启动预热
func (c *Client) MarketWatch(ctx context.Context) ([]domain.MarketPrice, error) {
	return c.get(ctx, "")
}

func (c *Client) get(ctx context.Context, query string) ([]domain.MarketPrice, error) {
	endpoint, err := exchange.BuildQueryURL(c.baseURL, marketWatchPath, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market_watch http %d: %s", resp.StatusCode, string(body))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: market_watch: %v", domain.ErrMalformedPayload, err)
	}

	log.Debug().Str("url", endpoint).Int("entries", len(out.Data)).Msg("market_watch fetched")
	return out.Data, nil
}
