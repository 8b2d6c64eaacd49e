// Package fakechain is an in-memory chain.Port double: every Submit call
// is recorded and answered from a scripted queue of results, so tests can
// exercise exhaustion (§9's S3/S4-style scenarios) without a live node.
package fakechain

import (
	"context"
	"fmt"
	"sync"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/chain"
)

type Call struct {
	ToAddress string
	Amount    amount.Amount
}

// Result scripts one Submit outcome: either TxID or Err, never both.
type Result struct {
	TxID string
	Err  error
}

type Gateway struct {
	mu      sync.Mutex
	Calls   []Call
	queue   []Result
	always  *Result
}

func New() *Gateway { return &Gateway{} }

// Enqueue appends one scripted result, consumed in FIFO order.
func (g *Gateway) Enqueue(r Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, r)
}

// Always makes every future Submit call (once the queue drains) return r.
func (g *Gateway) Always(r Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.always = &r
}

func (g *Gateway) Submit(_ context.Context, toAddress string, amt amount.Amount) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls = append(g.Calls, Call{ToAddress: toAddress, Amount: amt})

	if len(g.queue) > 0 {
		r := g.queue[0]
		g.queue = g.queue[1:]
		if r.Err != nil {
			return "", r.Err
		}
		return r.TxID, nil
	}
	if g.always != nil {
		if g.always.Err != nil {
			return "", g.always.Err
		}
		return g.always.TxID, nil
	}
	return "", fmt.Errorf("fakechain: no scripted result queued")
}

var _ chain.Port = (*Gateway)(nil)
