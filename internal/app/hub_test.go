package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

// fakeSignal records every frame delivered to one connection.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, fr := range f.frames {
		var ev struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(fr, &ev); err == nil {
			names = append(names, ev.Event)
		}
	}
	return names
}

func (f *fakeSignal) count(event string) int {
	n := 0
	for _, name := range f.events() {
		if name == event {
			n++
		}
	}
	return n
}

type fakeSession struct {
	id     domain.ConnID
	user   domain.UserID
	signal *fakeSignal
}

func (s *fakeSession) ID() domain.ConnID             { return s.id }
func (s *fakeSession) User() domain.UserID           { return s.user }
func (s *fakeSession) Signal() core.SignalConnection { return s.signal }

func newFakeSession(id domain.ConnID, user domain.UserID) *fakeSession {
	return &fakeSession{id: id, user: user, signal: &fakeSignal{}}
}

func TestHubPublishReachesOnlySubscribers(t *testing.T) {
	h := NewHub()
	a := newFakeSession("c1", "alice")
	b := newFakeSession("c2", "bob")
	h.Register(a)
	h.Register(b)
	h.Subscribe(RoomTopic("dm1"), a.id)

	res := h.Publish(RoomTopic("dm1"), core.Event{Name: "receive-message", Data: "hi"})
	if res.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", res.Sent)
	}
	if got := a.signal.count("receive-message"); got != 1 {
		t.Errorf("subscriber got %d frames, want 1", got)
	}
	if got := len(b.signal.events()); got != 0 {
		t.Errorf("non-subscriber got %d frames, want 0", got)
	}
}

func TestHubPublishExceptSkipsOrigin(t *testing.T) {
	h := NewHub()
	a := newFakeSession("c1", "alice")
	b := newFakeSession("c2", "bob")
	h.Register(a)
	h.Register(b)
	h.Subscribe(RoomTopic("dm1"), a.id)
	h.Subscribe(RoomTopic("dm1"), b.id)

	res := h.PublishExcept(RoomTopic("dm1"), a.id, core.Event{Name: "typing"})
	if res.Sent != 1 {
		t.Fatalf("Sent = %d, want 1", res.Sent)
	}
	if got := len(a.signal.events()); got != 0 {
		t.Errorf("origin got %d frames, want 0", got)
	}
	if got := b.signal.count("typing"); got != 1 {
		t.Errorf("peer got %d typing frames, want 1", got)
	}
}

func TestHubSubscribeUnknownConnIsNoop(t *testing.T) {
	h := NewHub()
	h.Subscribe(RoomTopic("dm1"), "ghost")
	res := h.Publish(RoomTopic("dm1"), core.Event{Name: "x"})
	if res.Sent != 0 || len(res.Dropped) != 0 {
		t.Fatalf("publish after ghost subscribe = %+v, want zero result", res)
	}
}

func TestHubDropRemovesSubscriptions(t *testing.T) {
	h := NewHub()
	a := newFakeSession("c1", "alice")
	h.Register(a)
	h.Subscribe(RoomTopic("dm1"), a.id)
	h.Subscribe(UserTopic("alice"), a.id)

	h.Drop(a.id)
	h.Drop(a.id) // second drop must be safe

	if _, ok := h.Session(a.id); ok {
		t.Fatal("session still registered after Drop")
	}
	if res := h.Publish(RoomTopic("dm1"), core.Event{Name: "x"}); res.Sent != 0 {
		t.Errorf("dropped conn still receives room events")
	}
	if h.TopicHasUser(UserTopic("alice"), "alice") {
		t.Errorf("TopicHasUser true after Drop")
	}
}

func TestHubTopicHasUserTracksAnyConnection(t *testing.T) {
	h := NewHub()
	a1 := newFakeSession("c1", "alice")
	a2 := newFakeSession("c2", "alice")
	h.Register(a1)
	h.Register(a2)
	h.Subscribe(RoomTopic("dm1"), a2.id)

	if !h.TopicHasUser(RoomTopic("dm1"), "alice") {
		t.Fatal("TopicHasUser = false, want true via second connection")
	}
	if h.TopicHasUser(RoomTopic("dm1"), "bob") {
		t.Fatal("TopicHasUser = true for user with no subscription")
	}

	h.Unsubscribe(RoomTopic("dm1"), a2.id)
	if h.TopicHasUser(RoomTopic("dm1"), "alice") {
		t.Fatal("TopicHasUser = true after Unsubscribe")
	}
}

func TestHubPublishReportsDropped(t *testing.T) {
	h := NewHub()
	ok := newFakeSession("c1", "alice")
	slow := newFakeSession("c2", "bob")
	slow.signal.fail = true
	h.Register(ok)
	h.Register(slow)
	h.Subscribe(RoomTopic("dm1"), ok.id)
	h.Subscribe(RoomTopic("dm1"), slow.id)

	res := h.Publish(RoomTopic("dm1"), core.Event{Name: "receive-message"})
	if res.Sent != 1 {
		t.Errorf("Sent = %d, want 1", res.Sent)
	}
	if len(res.Dropped) != 1 || res.Dropped[0] != slow.id {
		t.Errorf("Dropped = %v, want [%s]", res.Dropped, slow.id)
	}
}

func TestHubBroadcastReachesEveryConnection(t *testing.T) {
	h := NewHub()
	a := newFakeSession("c1", "alice")
	b := newFakeSession("c2", "bob")
	h.Register(a)
	h.Register(b)

	res := h.Broadcast(core.Event{Name: "online-users", Data: []string{"alice", "bob"}})
	if res.Sent != 2 {
		t.Fatalf("Sent = %d, want 2", res.Sent)
	}
	for _, s := range []*fakeSession{a, b} {
		if got := s.signal.count("online-users"); got != 1 {
			t.Errorf("conn %s got %d frames, want 1", s.id, got)
		}
	}
}
