package cdp

import (
	"sync"

	"github.com/dgnsrekt/netwatch/internal/capture"
)

// listeners is a set of callbacks that can be removed individually.
type listeners[F any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]F
}

func (l *listeners[F]) add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]F)
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// snapshot returns the current callbacks so they can run without the lock.
func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]F, 0, len(l.fns))
	for _, fn := range l.fns {
		out = append(out, fn)
	}
	return out
}

// browserContext is one CDP browser context. The client reports its page
// lifecycle through the registered listeners.
type browserContext struct {
	id string

	pageOpened listeners[func(capture.Page)]
	pageClosed listeners[func(capture.Page)]
	closed     listeners[func()]
}

func newBrowserContext(id string) *browserContext {
	return &browserContext{id: id}
}

func (b *browserContext) ID() string { return b.id }

func (b *browserContext) OnPage(fn func(capture.Page)) func() {
	return b.pageOpened.add(fn)
}

func (b *browserContext) OnPageClosed(fn func(capture.Page)) func() {
	return b.pageClosed.add(fn)
}

func (b *browserContext) OnClose(fn func()) func() {
	return b.closed.add(fn)
}

func (b *browserContext) emitPage(p capture.Page) {
	for _, fn := range b.pageOpened.snapshot() {
		fn(p)
	}
}

func (b *browserContext) emitPageClosed(p capture.Page) {
	for _, fn := range b.pageClosed.snapshot() {
		fn(p)
	}
}

func (b *browserContext) emitClose() {
	for _, fn := range b.closed.snapshot() {
		fn()
	}
}
