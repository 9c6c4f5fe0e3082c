package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
)

// PollPolicy is a fixed-interval retry schedule with an attempt ceiling.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

var DefaultPollPolicy = PollPolicy{Interval: time.Second, MaxAttempts: 30}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollPolicy.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollPolicy.MaxAttempts
	}
	return p
}

// WaitForBroadcasterOffer polls until the broadcaster has published its offer.
func (c *Client) WaitForBroadcasterOffer(ctx context.Context, policy PollPolicy, roomID, broadcasterID string) (string, error) {
	return poll(ctx, policy, func(ctx context.Context) (string, error) {
		return c.GetBroadcasterOffer(ctx, roomID, broadcasterID)
	})
}

// WaitForViewerAnswer polls until viewerID has published its answer.
func (c *Client) WaitForViewerAnswer(ctx context.Context, policy PollPolicy, roomID, viewerID string) (string, error) {
	return poll(ctx, policy, func(ctx context.Context) (string, error) {
		return c.GetViewerAnswer(ctx, roomID, viewerID)
	})
}

func poll(ctx context.Context, policy PollPolicy, fetch func(ctx context.Context) (string, error)) (string, error) {
	policy = policy.normalized()

	for attempt := 1; ; attempt++ {
		sdp, err := fetch(ctx)
		if err == nil {
			return sdp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		if attempt >= policy.MaxAttempts {
			return "", fmt.Errorf("%w after %d attempts", ErrPollTimeout, attempt)
		}

		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// CandidateTracker remembers which remote candidates were already handed to
// the peer connection, so that repeated snapshot polls apply each one once.
type CandidateTracker struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	offset int
}

func NewCandidateTracker() *CandidateTracker {
	return &CandidateTracker{seen: make(map[string]struct{})}
}

// Apply returns the candidates of snapshot not seen before, in order.
func (t *CandidateTracker) Apply(snapshot []webrtc.ICECandidateInit) []webrtc.ICECandidateInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(snapshot)
}

// Poll fetches the candidates published by peerID since the previous Poll
// and returns the unseen ones.
func (t *CandidateTracker) Poll(ctx context.Context, c *Client, roomID, peerID string) ([]webrtc.ICECandidateInit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch, err := c.GetICECandidates(ctx, roomID, peerID, t.offset)
	if err != nil {
		return nil, err
	}
	t.offset += len(batch)
	return t.apply(batch), nil
}

func (t *CandidateTracker) apply(snapshot []webrtc.ICECandidateInit) []webrtc.ICECandidateInit {
	fresh := []webrtc.ICECandidateInit{}
	for _, c := range snapshot {
		key := candidateKey(c)
		if _, ok := t.seen[key]; ok {
			continue
		}
		t.seen[key] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

func candidateKey(c webrtc.ICECandidateInit) string {
	mid, index := "", ""
	if c.SDPMid != nil {
		mid = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		index = strconv.Itoa(int(*c.SDPMLineIndex))
	}
	return c.Candidate + "\x00" + mid + "\x00" + index
}
