package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/jobs"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/moments"
)

var morning = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	items []media.Item
	err   error
}

func (s *fakeSource) ListMedia(context.Context, media.TimeRange, media.KindFilter, media.SortOrder) ([]media.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, s.err
}

func (s *fakeSource) ResolveLocation(context.Context, string) (*media.Location, error) {
	return &media.Location{Latitude: 50.0875, Longitude: 14.4213}, nil
}

type fakeAlbums struct {
	mu     sync.Mutex
	titles []string
}

func (a *fakeAlbums) Save(_ context.Context, title string, items []media.Item) ([]media.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return items, nil
}

func morningItems(n int) []media.Item {
	items := make([]media.Item, n)
	for i := range items {
		items[i] = media.Item{
			ID:          int64(i + 1),
			LocationURI: fmt.Sprintf("p%d", i+1),
			CapturedAt:  morning.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Kind:        media.KindImage,
		}
	}
	return items
}

func newTestServer(t *testing.T, src media.Source, albums media.AlbumWriter) *httptest.Server {
	t.Helper()
	exec := jobs.NewLocalExecutor(constants.JobHistorySize)
	t.Cleanup(exec.Shutdown)

	org := moments.New(moments.Options{Source: src, Albums: albums, Executor: exec})
	s := NewServer(&config.Config{}, org, clustering.RetryOptions{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxRetries:      1,
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

type sseEvent struct {
	Type string
	Data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.Type != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func stream(t *testing.T, srv *httptest.Server, query string) []sseEvent {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/v1/moments/stream" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return readEvents(t, resp.Body)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSnapshot_NotComputedYet(t *testing.T) {
	srv := newTestServer(t, &fakeSource{items: morningItems(25)}, nil)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/moments", nil))
}

func TestStream_ThenSnapshot(t *testing.T) {
	srv := newTestServer(t, &fakeSource{items: morningItems(25)}, nil)

	events := stream(t, srv, "")
	require.Len(t, events, 2)
	assert.Equal(t, "cluster", events[0].Type)
	assert.Equal(t, "done", events[1].Type)
	assert.JSONEq(t, `{"clusters":1}`, events[1].Data)

	var cluster media.Cluster
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &cluster))
	assert.Len(t, cluster.Members, 25)
	assert.Equal(t, media.SaveDefault, cluster.SaveState)

	var snap struct {
		Prompt     string          `json:"prompt"`
		Categories []string        `json:"categories"`
		Clusters   []media.Cluster `json:"clusters"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/moments", &snap))
	assert.Empty(t, snap.Prompt)
	assert.Empty(t, snap.Categories)
	require.Len(t, snap.Clusters, 1)
	assert.Equal(t, cluster.Key, snap.Clusters[0].Key)
}

func TestStream_TooFewItems(t *testing.T) {
	srv := newTestServer(t, &fakeSource{items: morningItems(5)}, nil)

	events := stream(t, srv, "")
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Type)
	assert.JSONEq(t, `{"clusters":0}`, events[0].Data)
}

func TestStream_RetriesThenReportsError(t *testing.T) {
	srv := newTestServer(t, &fakeSource{err: errors.New("database offline")}, nil)

	events := stream(t, srv, "")
	require.Len(t, events, 2)
	assert.Equal(t, "retry", events[0].Type)
	assert.Equal(t, "error", events[1].Type)
	assert.Contains(t, events[1].Data, "database offline")
}

func TestSave(t *testing.T) {
	albums := &fakeAlbums{}
	srv := newTestServer(t, &fakeSource{items: morningItems(25)}, albums)
	events := stream(t, srv, "")
	var cluster media.Cluster
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &cluster))

	resp, body := post(t, fmt.Sprintf("%s/api/v1/moments/%d/save", srv.URL, cluster.Key), `{"title":"Morning walk"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 25, body["saved"])
	assert.Equal(t, []string{"Morning walk"}, albums.titles)

	var snap struct {
		Clusters []media.Cluster `json:"clusters"`
	}
	getJSON(t, srv.URL+"/api/v1/moments", &snap)
	assert.Equal(t, media.SaveCompleted, snap.Clusters[0].SaveState)

	resp, _ = post(t, srv.URL+"/api/v1/moments/42/save", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/api/v1/moments/abc/save", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, fmt.Sprintf("%s/api/v1/moments/%d/save", srv.URL, cluster.Key), "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSave_WithoutAlbumWriter(t *testing.T) {
	srv := newTestServer(t, &fakeSource{items: morningItems(25)}, nil)
	events := stream(t, srv, "")
	var cluster media.Cluster
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &cluster))

	resp, _ := post(t, fmt.Sprintf("%s/api/v1/moments/%d/save", srv.URL, cluster.Key), "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestJob_RunsAndPublishesSnapshot(t *testing.T) {
	srv := newTestServer(t, &fakeSource{items: morningItems(25)}, nil)

	resp, body := post(t, srv.URL+"/api/v1/moments/job", `{"prompt":""}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["enqueued"])
	assert.NotEmpty(t, body["id"])

	require.Eventually(t, func() bool {
		var status jobs.Status
		getJSON(t, srv.URL+"/api/v1/moments/job", &status)
		return status.State == jobs.StateSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/moments", nil))
}

func TestJob_InvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	resp, _ := post(t, srv.URL+"/api/v1/moments/job", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJob_CancelWhenIdle(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/moments/job", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var status jobs.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, jobs.StateIdle, status.State)
}

func TestJobEvents_FirstEventIsCurrentStatus(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/moments/job/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: status\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle"}`, strings.TrimPrefix(strings.TrimSpace(line), "data: "))
}

func TestInterpret(t *testing.T) {
	srv := newTestServer(t, &fakeSource{}, nil)

	var body struct {
		Key        string   `json:"key"`
		Categories []string `json:"categories"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/prompt?prompt=mountains", &body))
	assert.Equal(t, "landscape", body.Key)
	assert.Equal(t, []string{"landscape"}, body.Categories)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/prompt", &body))
	assert.Empty(t, body.Key)
	assert.Empty(t, body.Categories)
}
