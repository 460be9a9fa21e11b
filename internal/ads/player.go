// Package ads plays ads on the user's device. The server asks the client over
// the websocket to show an ad and waits for the client to report the outcome.
package ads

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"rewards_webapp/internal/ledger"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/ws"

	"github.com/google/uuid"
)

var (
	errNoClient     = errors.New("no open app session")
	errUnknownAd    = errors.New("unknown ad request")
	errForeignOwner = errors.New("ad request belongs to another user")
)

// Pusher delivers a message to every open socket of a user
type Pusher interface {
	Push(userID, msgType string, payload any) int
}

type waiter struct {
	userID string
	adType string
	done   chan error
}

// Player implements ledger.AdPlayer on top of the push channel
type Player struct {
	push Pusher

	mu      sync.Mutex
	pending map[string]*waiter
}

func NewPlayer(push Pusher) *Player {
	return &Player{push: push, pending: make(map[string]*waiter)}
}

// PlayAd blocks until the client reports a result or ctx ends
func (p *Player) PlayAd(ctx context.Context, userID, adType string) error {
	id := uuid.NewString()
	w := &waiter{userID: userID, adType: adType, done: make(chan error, 1)}

	p.mu.Lock()
	p.pending[id] = w
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if p.push.Push(userID, ws.MsgPlayAd, ws.PlayAdPayload{RequestID: id, AdType: adType}) == 0 {
		return &ledger.AdError{Reason: ledger.AdUnsupported, Err: errNoClient}
	}

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete resolves a pending PlayAd. Results for unknown or foreign requests are ignored.
func (p *Player) Complete(userID string, res ws.AdResultPayload) error {
	p.mu.Lock()
	w, ok := p.pending[res.RequestID]
	p.mu.Unlock()
	if !ok {
		return errUnknownAd
	}
	if w.userID != userID {
		return errForeignOwner
	}

	var err error
	if !res.OK {
		err = &ledger.AdError{Reason: failure(res.Reason)}
	}
	select {
	case w.done <- err:
	default:
		// уже есть результат
	}
	return nil
}

// HandleMessage is the ws handler for ad_result
func (p *Player) HandleMessage(userID string, payload json.RawMessage) {
	var res ws.AdResultPayload
	if err := json.Unmarshal(payload, &res); err != nil {
		logger.Debug("bad ad_result payload", "user_id", userID, "error", err)
		return
	}
	if err := p.Complete(userID, res); err != nil {
		logger.Debug("ad_result ignored", "user_id", userID, "request_id", res.RequestID, "error", err)
	}
}

func (p *Player) InitializeAutomaticAds(userID string, settings ledger.AutoAdSettings) {
	p.push.Push(userID, ws.MsgAutoAds, settings)
}

// Pending returns the number of ads currently playing
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func failure(reason string) ledger.AdFailure {
	switch f := ledger.AdFailure(reason); f {
	case ledger.AdUnsupported, ledger.AdTimeout, ledger.AdClosedEarly:
		return f
	}
	return ledger.AdSDKFailure
}
