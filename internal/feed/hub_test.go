package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a Client with a send channel but no connection.
func mockClient(hub *Hub, familyID int64) *Client {
	return &Client{hub: hub, familyID: familyID, send: make(chan []byte, sendBufferSize)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(discard())
	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)
	c3 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	assert.Equal(t, 2, hub.ClientCount(1))
	assert.Equal(t, 1, hub.ClientCount(2))

	hub.Unregister(c1)
	hub.Unregister(c1)
	assert.Equal(t, 1, hub.ClientCount(1))

	hub.Unregister(c2)
	assert.Equal(t, 0, hub.ClientCount(1))
}

func TestBroadcastIsFamilyScoped(t *testing.T) {
	hub := NewHub(discard())
	mine := mockClient(hub, 1)
	other := mockClient(hub, 2)
	hub.Register(mine)
	hub.Register(other)

	hub.Broadcast(NewEvent(1, "occurrence", "created", 7, map[string]any{"due_at": "2026-03-02"}))

	ev := receive(t, mine)
	assert.Equal(t, "occurrence_created", ev.Type)
	assert.Equal(t, int64(1), ev.FamilyID)
	assert.Equal(t, int64(7), ev.ID)
	assert.Empty(t, other.send)
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(discard())
	c := mockClient(hub, 1)
	hub.Register(c)

	for range sendBufferSize + 5 {
		hub.Broadcast(NewEvent(1, "generation", "finished", 0, nil))
	}
	assert.Len(t, c.send, sendBufferSize)
}

func TestConcurrentBroadcast(t *testing.T) {
	hub := NewHub(discard())
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, int64(i%2))
			hub.Register(c)
			hub.Broadcast(NewEvent(int64(i%2), "generation", "finished", 0, nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.ClientCount(0))
	assert.Equal(t, 0, hub.ClientCount(1))
}

type fakeEngine struct {
	created []model.TaskOccurrence
	err     error
	ok      bool
}

func (f fakeEngine) Generate(context.Context, int64, generator.Window) ([]model.TaskOccurrence, error) {
	return f.created, f.err
}

func (f fakeEngine) Preview(context.Context, int64, generator.Window) ([]generator.PreviewItem, error) {
	return nil, nil
}

func (f fakeEngine) Skip(context.Context, int64, time.Time, *int64) (bool, error) { return f.ok, f.err }

func (f fakeEngine) CompleteSeries(context.Context, int64, *int64) (bool, error) { return f.ok, f.err }

type fakeTemplates map[int64]model.TaskTemplate

func (f fakeTemplates) GetTemplate(_ context.Context, id int64) (*model.TaskTemplate, error) {
	t, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func TestPublisherGenerate(t *testing.T) {
	hub := NewHub(discard())
	c := mockClient(hub, 3)
	hub.Register(c)

	tmplID, assignee := int64(5), int64(9)
	engine := fakeEngine{created: []model.TaskOccurrence{
		{ID: 11, FamilyID: 3, TemplateID: &tmplID, AssigneeID: &assignee},
		{ID: 12, FamilyID: 3, TemplateID: &tmplID, AssigneeID: &assignee},
	}}
	p := NewPublisher(engine, fakeTemplates{}, hub)

	created, err := p.Generate(context.Background(), 3, generator.Window{})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	assert.Equal(t, int64(11), receive(t, c).ID)
	assert.Equal(t, int64(12), receive(t, c).ID)
	summary := receive(t, c)
	assert.Equal(t, "generation_finished", summary.Type)
	assert.Equal(t, float64(2), summary.Extra["created"])
	assert.Equal(t, false, summary.Extra["failed"])
}

func TestPublisherGenerateNothingIsQuiet(t *testing.T) {
	hub := NewHub(discard())
	c := mockClient(hub, 3)
	hub.Register(c)

	_, err := NewPublisher(fakeEngine{}, fakeTemplates{}, hub).Generate(context.Background(), 3, generator.Window{})
	require.NoError(t, err)
	assert.Empty(t, c.send)
}

func TestPublisherSkipAndComplete(t *testing.T) {
	hub := NewHub(discard())
	c := mockClient(hub, 4)
	hub.Register(c)
	templates := fakeTemplates{8: {ID: 8, FamilyID: 4}}

	p := NewPublisher(fakeEngine{ok: true}, templates, hub)
	ok, err := p.Skip(context.Background(), 8, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.True(t, ok)

	ev := receive(t, c)
	assert.Equal(t, "template_skipped", ev.Type)
	assert.Equal(t, "2026-03-05", ev.Extra["date"])

	_, err = p.CompleteSeries(context.Background(), 8, nil)
	require.NoError(t, err)
	assert.Equal(t, "template_completed", receive(t, c).Type)

	// Nothing is published when the engine reports no change or fails.
	p = NewPublisher(fakeEngine{ok: false, err: errors.New("boom")}, templates, hub)
	_, err = p.Skip(context.Background(), 8, time.Now(), nil)
	require.Error(t, err)
	assert.Empty(t, c.send)
}
