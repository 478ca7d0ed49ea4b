package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/mocks"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeConn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []protocol.Message
	closed bool
	full   bool
}

func (c *fakeConn) ID() core.ConnID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	var m protocol.Message
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(typ string) []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Message
	for _, m := range c.frames {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, m := range c.frames {
		out = append(out, m.Type)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func decode[T any](t *testing.T, m protocol.Message) T {
	t.Helper()
	var v T
	require.NoError(t, m.Decode(&v))
	return v
}

type fakeHistory struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (f *fakeHistory) ListMessages(context.Context, domain.RoomID, int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.msgs...), nil
}

func (f *fakeHistory) AppendMessage(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, *msg)
	return nil
}

// newTestHub builds a hub whose directory knows the given rooms.
func newTestHub(t *testing.T, rooms ...*domain.Room) (*Hub, *fakeHistory) {
	t.Helper()
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockRoomLookup(ctrl)
	byID := make(map[domain.RoomID]*domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	lookup.EXPECT().GetRoom(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id domain.RoomID) (*domain.Room, error) {
			if r, ok := byID[id]; ok {
				return r, nil
			}
			return nil, domain.ErrRoomNotFound
		}).AnyTimes()

	hist := &fakeHistory{}
	h := New(Deps{
		Registry:   app.NewRegistry(),
		Authorizer: app.NewAuthorizer(lookup, 0),
		History:    hist,
	}, DefaultConfig())
	t.Cleanup(h.Wait)
	return h, hist
}

func connect(h *Hub, cid, uid string) *fakeConn {
	c := &fakeConn{id: core.ConnID(cid)}
	h.Connect(c, domain.User{ID: domain.UserID(uid), Username: uid}, nil)
	return c
}

func join(t *testing.T, h *Hub, c *fakeConn, room string) *JoinResult {
	t.Helper()
	res, err := h.Join(context.Background(), JoinRequest{ConnID: c.id, RoomID: domain.RoomID(room)})
	require.NoError(t, err)
	return res
}

func (h *Hub) roomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
