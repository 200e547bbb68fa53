package transport

import (
	"io"
	"sync"
)

// Stage names a step of a media call.
type Stage string

const (
	StageValidated  Stage = "validated"
	StageSending    Stage = "sending"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	StageSimulated  Stage = "simulated"
)

// Progress is one event on a call's progress stream. For StageSending, Sent
// and Total count part bytes copied into the buffered multipart body, not
// bytes written to the connection.
type Progress struct {
	Stage Stage
	Sent  int64
	Total int64
}

// Emit sends p without blocking; the event is dropped when ch is full or nil.
func Emit(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

type sentCounter struct {
	mu    sync.Mutex
	sent  int64
	total int64
	ch    chan<- Progress
}

func (c *sentCounter) add(n int) {
	if c.ch == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.sent += int64(n)
	p := Progress{Stage: StageSending, Sent: c.sent, Total: c.total}
	c.mu.Unlock()
	Emit(c.ch, p)
}

// progressReader reports bytes consumed from a multipart part.
type progressReader struct {
	r       io.Reader
	counter *sentCounter
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.counter.add(n)
	return n, err
}
