package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"xprice/internal/application/port"
)

type Sink struct {
	out io.Writer
}

func NewSink() port.Sink { return &Sink{out: os.Stdout} }

// NewWriterSink 输出到任意 writer（测试用）
func NewWriterSink(w io.Writer) *Sink { return &Sink{out: w} }

// 打印快照行后留一个空行
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	_, err := fmt.Fprintf(s.out, "%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.out, "\n")
	return err
}
