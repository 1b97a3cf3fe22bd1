package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/echodoc-ai/echodoc/pkg/call"
)

type snapshotMsg call.Snapshot

type toastMsg call.Toast

type navigateMsg string

// Bridge is a call.Presenter that forwards controller output into a running
// tea.Program. Messages sent before Attach are dropped.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

var _ call.Presenter = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Attach(p *tea.Program) {
	if p == nil {
		return
	}
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) emit(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

func (b *Bridge) Render(s call.Snapshot) { b.emit(snapshotMsg(s)) }

func (b *Bridge) Toast(t call.Toast) { b.emit(toastMsg(t)) }

func (b *Bridge) Navigate(path string) { b.emit(navigateMsg(path)) }
