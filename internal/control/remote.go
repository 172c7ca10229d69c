package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

// Remote talks to a running player's control API.
type Remote struct {
	base string
	http *http.Client
}

func NewRemote(addr string) *Remote {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Remote{
		base: base,
		http: &http.Client{Timeout: config.HTTPTimeoutSeconds * time.Second},
	}
}

// RemoteError is a non-2xx answer from the API.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *Remote) Status(ctx context.Context) (app.Status, error) {
	var st app.Status
	err := r.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (r *Remote) Queue(ctx context.Context) (QueueDTO, error) {
	var q QueueDTO
	err := r.do(ctx, http.MethodGet, "/api/queue", nil, &q)
	return q, err
}

func (r *Remote) Songs(ctx context.Context) ([]track.Info, error) {
	var songs []track.Info
	err := r.do(ctx, http.MethodGet, "/api/songs", nil, &songs)
	return songs, err
}

func (r *Remote) Enqueue(ctx context.Context, id string) (int, error) {
	var out struct {
		Index int `json:"index"`
	}
	err := r.do(ctx, http.MethodPost, "/api/queue", enqueueRequest{ID: id}, &out)
	return out.Index, err
}

func (r *Remote) EnqueuePlaylist(ctx context.Context, name string, opts queue.GroupOptions) (GroupDTO, error) {
	var g GroupDTO
	err := r.do(ctx, http.MethodPost, "/api/queue/playlist", enqueuePlaylistRequest{
		Name:     name,
		PlayNow:  opts.PlayNow,
		Shuffle:  opts.Shuffle,
		Expanded: opts.Expanded,
	}, &g)
	return g, err
}

func (r *Remote) PlayNow(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodPost, "/api/play-now", enqueueRequest{ID: id}, nil)
}

func (r *Remote) JumpTo(ctx context.Context, index int) error {
	return r.do(ctx, http.MethodPost, "/api/queue/"+strconv.Itoa(index)+"/play", nil, nil)
}

func (r *Remote) Remove(ctx context.Context, index int) error {
	return r.do(ctx, http.MethodDelete, "/api/queue/"+strconv.Itoa(index), nil, nil)
}

func (r *Remote) Move(ctx context.Context, from, to int) error {
	return r.do(ctx, http.MethodPost, "/api/queue/move", moveRequest{From: from, To: to}, nil)
}

func (r *Remote) Clear(ctx context.Context) error {
	return r.do(ctx, http.MethodDelete, "/api/queue", nil, nil)
}

func (r *Remote) ToggleGroup(ctx context.Context, g GroupDTO) (bool, error) {
	var out struct {
		Collapsed bool `json:"collapsed"`
	}
	path := fmt.Sprintf("/api/queue/groups/%s/%d/toggle", url.PathEscape(g.Playlist), g.Instance)
	err := r.do(ctx, http.MethodPost, path, nil, &out)
	return out.Collapsed, err
}

// Command posts to a bodiless transport endpoint such as "next" or "toggle".
func (r *Remote) Command(ctx context.Context, name string) error {
	return r.do(ctx, http.MethodPost, "/api/"+name, nil, nil)
}

func (r *Remote) Loop(ctx context.Context, mode *queue.LoopMode) (queue.LoopMode, error) {
	var out struct {
		Loop queue.LoopMode `json:"loop"`
	}
	err := r.do(ctx, http.MethodPost, "/api/loop", loopRequest{Mode: mode}, &out)
	return out.Loop, err
}

func (r *Remote) SetVolume(ctx context.Context, level float64) error {
	return r.do(ctx, http.MethodPost, "/api/volume", volumeRequest{Level: level}, nil)
}
