package console

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xprice/internal/application/port"
	"xprice/internal/domain"
)

// Board 作为 high/low 订阅者，每个窗口输出一行
type Board struct {
	mu        sync.Mutex
	formatter *Formatter
	sink      port.Sink
	prevHigh  map[string]decimal.Decimal
	now       func() time.Time
}

func NewBoard(formatter *Formatter, sink port.Sink) *Board {
	return &Board{
		formatter: formatter,
		sink:      sink,
		prevHigh:  make(map[string]decimal.Decimal),
		now:       time.Now,
	}
}

// Handle 满足 pricing.HighLowHandler
func (b *Board) Handle(snap domain.HighLowSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dirs := make(map[string]Direction, len(snap))
	for sym, e := range snap {
		if prev, ok := b.prevHigh[sym]; ok {
			dirs[sym] = DirectionOf(prev, e.AskHigh)
		}
		b.prevHigh[sym] = e.AskHigh
	}

	line := b.formatter.Render(snap, dirs)
	if err := b.sink.WriteSnapshot(b.now(), line); err != nil {
		log.Error().Err(err).Msg("board write failed")
	}
}
