// Package trace はセレモニーの進行を記録する軽量トレーサー。
package trace

import (
	"fmt"
	"io"
)

// Tracer はイベントを1行ずつ書き出す。
type Tracer interface {
	Trace(...any)
}

type tracer struct {
	out io.Writer
}

func (t *tracer) Trace(a ...any) {
	fmt.Fprint(t.out, a...)
	fmt.Fprintln(t.out)
}

// New は w へ書き出す Tracer を生成する。
func New(w io.Writer) Tracer {
	return &tracer{out: w}
}

type nilTracer struct{}

func (nilTracer) Trace(...any) {}

// Off は何も記録しない Tracer を返す。テストや本番の静音運用向け。
func Off() Tracer {
	return nilTracer{}
}
