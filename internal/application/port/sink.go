package port

import "time"

// Sink 看板输出
type Sink interface {
	// WriteSnapshot 追加一行带时间戳的窗口快照
	WriteSnapshot(ts time.Time, line string) error
	NewLine() error
}
