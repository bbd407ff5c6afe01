package port

import "context"

// Notifier 运维告警（Slack 等传输不在本仓库实现）
type Notifier interface {
	Notify(ctx context.Context, message string, fields map[string]any)
}
