package mcp

import (
	"bytes"
	"strings"
	"sync"

	globalconfig "mcpdesk/config"
)

// maxLine bounds one stdout line. Tool results such as screenshots arrive
// as a single JSON-RPC line, so the limit sits far above them; a longer
// line is dropped whole and never split into fragments.
const maxLine = 64 << 20

// outputPipe decouples reading a child's output from processing it. Push
// only copies the chunk onto a queue and returns; a single worker splits
// lines across chunk boundaries and hands them to handle in order.
type outputPipe struct {
	handle func(line string)
	limit  int

	mu     sync.Mutex
	queue  [][]byte
	closed bool

	wake       chan struct{}
	done       chan struct{}
	carry      []byte
	discarding bool // skipping the rest of an oversized line
}

func newOutputPipe(handle func(line string)) *outputPipe {
	return newOutputPipeWithLimit(handle, maxLine)
}

func newOutputPipeWithLimit(handle func(line string), limit int) *outputPipe {
	p := &outputPipe{
		handle: handle,
		limit:  limit,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Push enqueues a chunk. It never blocks on processing.
func (p *outputPipe) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, buf)
	p.mu.Unlock()

	p.signal()
}

// Close lets the worker drain what is queued, flush any partial line and exit.
func (p *outputPipe) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.signal()
}

// Wait blocks until the worker has processed everything and exited.
func (p *outputPipe) Wait() {
	<-p.done
}

func (p *outputPipe) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *outputPipe) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		closed := p.closed
		p.mu.Unlock()

		for _, chunk := range batch {
			p.split(chunk)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			p.flush()
			return
		}
		<-p.wake
	}
}

func (p *outputPipe) split(chunk []byte) {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			p.hold(chunk)
			return
		}

		switch {
		case p.discarding:
			p.discarding = false
		case len(p.carry) > 0:
			p.carry = append(p.carry, chunk[:idx]...)
			p.emit(p.carry)
			p.carry = nil
		default:
			p.emit(chunk[:idx])
		}
		chunk = chunk[idx+1:]
	}
}

// hold keeps the unterminated tail of a line until its newline arrives.
func (p *outputPipe) hold(part []byte) {
	if p.discarding {
		return
	}
	if len(p.carry)+len(part) > p.limit {
		globalconfig.DebugLog.Errorf("[MCP] output line exceeds %d bytes, dropped", p.limit)
		p.carry = nil
		p.discarding = true
		return
	}
	p.carry = append(p.carry, part...)
}

func (p *outputPipe) flush() {
	if len(p.carry) > 0 && !p.discarding {
		p.emit(p.carry)
	}
	p.carry = nil
}

func (p *outputPipe) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if strings.TrimSpace(text) == "" {
		return
	}
	p.handle(text)
}
