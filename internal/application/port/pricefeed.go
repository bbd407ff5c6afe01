package port

import (
	"context"

	"xprice/internal/domain"
)

// TickSink 接收归一化后的 tick（由 pricing.Engine 实现）
type TickSink interface {
	ApplyTick(t domain.NormalizedTick) error
}

// PriceFeed 一个可运行的行情源，Run 阻塞直到 ctx 取消或行情源放弃
type PriceFeed interface {
	Name() string
	Run(ctx context.Context) error
}
