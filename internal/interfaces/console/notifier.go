package console

import (
	"context"

	"github.com/rs/zerolog/log"

	"xprice/internal/application/port"
)

// LogNotifier 告警只写日志；真正的推送通道（Slack 等）在外部接入
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) Notify(ctx context.Context, message string, fields map[string]any) {
	log.Error().Fields(fields).Str("alert", message).Msg("operator alert")
}

// MultiNotifier 依次调用所有 notifier
type MultiNotifier []port.Notifier

func NewMultiNotifier(ns ...port.Notifier) MultiNotifier {
	out := make(MultiNotifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m MultiNotifier) Notify(ctx context.Context, message string, fields map[string]any) {
	for _, n := range m {
		n.Notify(ctx, message, fields)
	}
}
