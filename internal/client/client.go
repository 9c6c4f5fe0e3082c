// Package client talks to the signaling HTTP API on behalf of a broadcaster or
// a viewer peer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"
)

var (
	// ErrNotFound is returned while the requested SDP has not been published.
	ErrNotFound = errors.New("not found")
	// ErrPollTimeout is returned when a wait exhausts its attempts.
	ErrPollTimeout = errors.New("poll attempts exhausted")
)

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signaling api: %d %s", e.StatusCode, e.Message)
}

type RoomInfo struct {
	RoomID        string    `json:"roomId"`
	BroadcasterID string    `json:"broadcasterId"`
	ViewerCount   int       `json:"viewerCount"`
	ViewerIDs     []string  `json:"viewerIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Client struct {
	baseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateRoom(ctx context.Context, broadcasterID, streamID string) (string, error) {
	var resp struct {
		RoomID string `json:"roomId"`
	}
	body := map[string]string{"broadcasterId": broadcasterID, "streamId": streamID}
	if err := c.do(ctx, http.MethodPost, "/api/rooms", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

func (c *Client) StoreBroadcasterOffer(ctx context.Context, roomID, broadcasterID, sdp string) error {
	body := map[string]string{"broadcasterId": broadcasterID, "sdp": sdp}
	return c.do(ctx, http.MethodPost, roomPath(roomID, "broadcaster-sdp"), nil, body, nil)
}

func (c *Client) GetBroadcasterOffer(ctx context.Context, roomID, broadcasterID string) (string, error) {
	var resp struct {
		SDP string `json:"sdp"`
	}
	query := url.Values{"broadcasterId": {broadcasterID}}
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "broadcaster-sdp"), query, nil, &resp); err != nil {
		return "", err
	}
	return resp.SDP, nil
}

func (c *Client) AddViewer(ctx context.Context, roomID, viewerID string) error {
	body := map[string]string{"viewerId": viewerID}
	return c.do(ctx, http.MethodPost, roomPath(roomID, "viewers"), nil, body, nil)
}

func (c *Client) StoreViewerAnswer(ctx context.Context, roomID, viewerID, sdp string) error {
	body := map[string]string{"viewerId": viewerID, "sdp": sdp}
	return c.do(ctx, http.MethodPost, roomPath(roomID, "viewer-sdp"), nil, body, nil)
}

func (c *Client) GetViewerAnswer(ctx context.Context, roomID, viewerID string) (string, error) {
	var resp struct {
		SDP string `json:"sdp"`
	}
	query := url.Values{"viewerId": {viewerID}}
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "viewer-sdp"), query, nil, &resp); err != nil {
		return "", err
	}
	return resp.SDP, nil
}

func (c *Client) AddICECandidate(ctx context.Context, roomID, peerID string, candidate webrtc.ICECandidateInit) error {
	body := struct {
		PeerID    string                  `json:"peerId"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}{peerID, candidate}
	return c.do(ctx, http.MethodPost, roomPath(roomID, "ice"), nil, body, nil)
}

// GetICECandidates returns the candidates published by peerID starting at
// index since. Pass 0 for the full history.
func (c *Client) GetICECandidates(ctx context.Context, roomID, peerID string, since int) ([]webrtc.ICECandidateInit, error) {
	var resp struct {
		Candidates []webrtc.ICECandidateInit `json:"candidates"`
	}
	query := url.Values{"peerId": {peerID}}
	if since > 0 {
		query.Set("since", strconv.Itoa(since))
	}
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "ice"), query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

func (c *Client) GetRoomInfo(ctx context.Context, roomID string) (RoomInfo, error) {
	var info RoomInfo
	err := c.do(ctx, http.MethodGet, roomPath(roomID, ""), nil, nil, &info)
	return info, err
}

func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, roomPath(roomID, ""), nil, nil, nil)
}

func (c *Client) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var resp struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ice-servers", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ICEServers, nil
}

func roomPath(roomID, sub string) string {
	p := "/api/rooms/" + url.PathEscape(roomID)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
