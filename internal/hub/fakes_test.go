package hub

import (
	"encoding/json"
	"errors"
	"sync"
)

var errFakeSend = errors.New("fake send failure")

type fakePeer struct {
	id   string
	fail bool

	mu     sync.Mutex
	sent   [][]byte
	closes int
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errFakeSend
	}
	p.sent = append(p.sent, append([]byte(nil), payload...))
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeer) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, payload := range p.sent {
		out = append(out, string(payload))
	}
	return out
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// lastRoster returns the agents of the most recent agent_list the peer received.
func (p *fakePeer) lastRoster() ([]string, bool) {
	messages := p.messages()
	for i := len(messages) - 1; i >= 0; i-- {
		var roster struct {
			Type   string   `json:"type"`
			Agents []string `json:"agents"`
		}
		if err := json.Unmarshal([]byte(messages[i]), &roster); err != nil {
			continue
		}
		if roster.Type == "agent_list" {
			return roster.Agents, true
		}
	}
	return nil, false
}

// blockingPeer holds every Send until release is closed.
type blockingPeer struct {
	fakePeer
	release chan struct{}
}

func newBlockingPeer(id string) *blockingPeer {
	return &blockingPeer{fakePeer: fakePeer{id: id}, release: make(chan struct{})}
}

func (p *blockingPeer) Send(payload []byte) error {
	<-p.release
	return p.fakePeer.Send(payload)
}
