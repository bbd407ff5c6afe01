package port

import (
	"context"

	"xprice/internal/domain"
)

// ReferencePriceSource 参考价查询（hash: quote -> field: base）
// 查不到时返回 domain.ErrPriceUnavailable
type ReferencePriceSource interface {
	Name() string
	MarketPrice(ctx context.Context, base, quote string) (*domain.MarketPrice, error)
}

// MarketWatchSource 全量行情列表，启动时用于预热 book
type MarketWatchSource interface {
	MarketWatch(ctx context.Context) ([]domain.MarketPrice, error)
}

// BookMirror 把当前 book 和窗口快照同步给其他进程
type BookMirror interface {
	UpsertTickers(ctx context.Context, tickers map[string]domain.Ticker) error
	PublishHighLow(ctx context.Context, name string, snap domain.HighLowSnapshot) error
}
