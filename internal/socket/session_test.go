package socket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/internal/notifications"
	authsession "github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/channel"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	frames  []serverMessage
	control []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	f.control = append(f.control, string(data))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                  {}
func (f *fakeConn) SetReadDeadline(time.Time) error     { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error    { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)   {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sendClient(t *testing.T, msg clientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal client message: %v", err)
	}
	select {
	case f.inbound <- data:
	case <-time.After(time.Second):
		t.Fatal("inbound buffer full")
	}
}

func (f *fakeConn) countFrames(frameType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, frame := range f.frames {
		if frame.Type == frameType {
			count++
		}
	}
	return count
}

func (f *fakeConn) waitForFrame(t *testing.T, frameType string) serverMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, frame := range f.frames {
			if frame.Type == frameType {
				f.mu.Unlock()
				return frame
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q frame received", frameType)
	return serverMessage{}
}

type fakeTransport struct {
	mu        sync.Mutex
	subs      map[string]int
	unsubs    map[string]int
	listeners map[int]channel.ListenerFunc
	nextID    int
	subErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subs:      map[string]int{},
		unsubs:    map[string]int{},
		listeners: map[int]channel.ListenerFunc{},
	}
}

func (f *fakeTransport) Subscribe(ctx context.Context, ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subs[ch]++
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, ch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs[ch]++
	return nil
}

func (f *fakeTransport) Listen(fn channel.ListenerFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeTransport) emit(msg channel.Message) {
	f.mu.Lock()
	fns := make([]channel.ListenerFunc, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (f *fakeTransport) subCount(ch string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[ch]
}

func (f *fakeTransport) unsubCount(ch string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubs[ch]
}

func (f *fakeTransport) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type fakeResolver struct {
	lookupFn func(ctx context.Context, token string) (*authsession.Session, error)
}

func (f *fakeResolver) Lookup(ctx context.Context, token string) (*authsession.Session, error) {
	return f.lookupFn(ctx, token)
}

type fakeGuard struct {
	getFn       func(ctx context.Context, id uuid.UUID) (*events.Event, error)
	canAccessFn func(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error)
}

func (f *fakeGuard) Get(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	return f.getFn(ctx, id)
}

func (f *fakeGuard) CanAccess(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error) {
	return f.canAccessFn(ctx, eventID, personID, role)
}

func testSocketConfig() config.SocketConfig {
	return config.SocketConfig{
		AuthTimeout:     time.Second,
		SendBufferSize:  8,
		WriteTimeout:    time.Second,
		PongTimeout:     time.Minute,
		PingInterval:    time.Hour,
		MaxMessageBytes: 4096,
	}
}

func attendeeResolver(orgGuid string, personID uuid.UUID) *fakeResolver {
	return &fakeResolver{
		lookupFn: func(ctx context.Context, token string) (*authsession.Session, error) {
			return &authsession.Session{
				PersonID: personID,
				OrgGuid:  orgGuid,
				Role:     enums.MemberRoleAttendee,
			}, nil
		},
	}
}

func startSession(t *testing.T, conn wsConn, tr transport, resolver authsession.Resolver, guard eventGuard, cfg config.SocketConfig) *Session {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	sess := newSession(conn, tr, resolver, guard, cfg, nil, logg)
	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		sess.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return sess
}

func eventually(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestAuthJoinsOrgChannel(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), &fakeGuard{}, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)

	eventually(t, func() bool { return tr.subCount("org-1") == 1 }, "org channel should be subscribed")
	if tr.listenerCount() != 1 {
		t.Fatalf("expected one transport listener, got %d", tr.listenerCount())
	}
}

func TestAuthDeadlineClosesConnection(t *testing.T) {
	conn := newFakeConn()
	cfg := testSocketConfig()
	cfg.AuthTimeout = 30 * time.Millisecond
	startSession(t, conn, newFakeTransport(), attendeeResolver("org-1", uuid.New()), &fakeGuard{}, cfg)

	eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		for _, frame := range conn.control {
			if strings.Contains(frame, "unauthorized") {
				return true
			}
		}
		return false
	}, "expected an unauthorized close frame")

	if conn.countFrames(msgAuthenticated) != 0 {
		t.Fatal("no authenticated frame may be emitted after a timeout")
	}
}

func TestFailedAuthStaysUnauthenticated(t *testing.T) {
	conn := newFakeConn()
	resolver := &fakeResolver{
		lookupFn: func(ctx context.Context, token string) (*authsession.Session, error) {
			return nil, authsession.ErrNoSession
		},
	}
	startSession(t, conn, newFakeTransport(), resolver, &fakeGuard{}, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "bad"})
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: "org-1"})

	frame := conn.waitForFrame(t, msgSubError)
	if frame.Error == nil || frame.Error.Code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized sub error, got %+v", frame.Error)
	}
	if conn.countFrames(msgAuthenticated) != 0 {
		t.Fatal("failed auth must not emit authenticated")
	}
}

func TestSubForbiddenForOutsiders(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			return false, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})

	frame := conn.waitForFrame(t, msgSubError)
	if frame.Error == nil || frame.Error.Code != string(pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden sub error, got %+v", frame.Error)
	}
	if tr.subCount(eventID.String()) != 0 {
		t.Fatal("forbidden channels must not reach the transport")
	}
}

func TestSubForbiddenForOtherOrgEvents(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-2"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			t.Fatal("access check should not run for foreign events")
			return false, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})

	frame := conn.waitForFrame(t, msgSubError)
	if frame.Error == nil || frame.Error.Code != string(pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden sub error, got %+v", frame.Error)
	}
}

func TestSubAndReemitFiltersByChannel(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			return true, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})
	conn.waitForFrame(t, msgSubResponse)

	payload, err := json.Marshal(notifications.ChannelPayload{
		NotificationID: uuid.New(),
		Channel:        eventID.String(),
		Message: notifications.Message{
			Type:    enums.NotificationTypeEvent,
			Action:  "checkin.created",
			Content: "walk-in at the door",
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	tr.emit(channel.Message{Channel: "unrelated-channel", Payload: payload})
	tr.emit(channel.Message{Channel: eventID.String(), Payload: payload})

	frame := conn.waitForFrame(t, string(enums.NotificationTypeEvent))
	if frame.ChannelID != eventID.String() {
		t.Fatalf("unexpected channel %q", frame.ChannelID)
	}
	if conn.countFrames(string(enums.NotificationTypeEvent)) != 1 {
		t.Fatal("messages on unsubscribed channels must not be delivered")
	}
}

func TestSubIdempotent(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			return true, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})

	eventually(t, func() bool { return conn.countFrames(msgSubResponse) == 2 }, "expected two sub responses")
	if tr.subCount(eventID.String()) != 1 {
		t.Fatalf("transport interest should be established once, got %d", tr.subCount(eventID.String()))
	}
}

func TestUnsubReleasesInterestOnce(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			return true, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String()})
	conn.waitForFrame(t, msgSubResponse)

	conn.sendClient(t, clientMessage{Type: msgUnsub, ChannelID: eventID.String()})
	eventually(t, func() bool { return tr.unsubCount(eventID.String()) == 1 }, "expected transport release")

	conn.sendClient(t, clientMessage{Type: msgUnsub, ChannelID: eventID.String()})
	conn.sendClient(t, clientMessage{Type: msgUnsub, ChannelID: "never-subscribed"})
	time.Sleep(20 * time.Millisecond)
	if tr.unsubCount(eventID.String()) != 1 {
		t.Fatal("repeated unsub must not release interest twice")
	}
	if tr.unsubCount("never-subscribed") != 0 {
		t.Fatal("unsub without a subscription must not reach the transport")
	}
}

func TestFailedOrgSubscribeLeavesNoInterest(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	tr.subErr = errors.New("redis down")
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), &fakeGuard{}, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)

	// Neither a client unsub nor teardown may release interest the failed
	// subscribe never acquired; doing so would decrement refcounted
	// interest owned by other sessions.
	conn.sendClient(t, clientMessage{Type: msgUnsub, ChannelID: "org-1"})
	time.Sleep(20 * time.Millisecond)
	if tr.unsubCount("org-1") != 0 {
		t.Fatalf("unsub after a failed subscribe must not reach the transport, got %d", tr.unsubCount("org-1"))
	}

	conn.sendClient(t, clientMessage{Type: msgDisconnect})
	eventually(t, func() bool { return tr.listenerCount() == 0 }, "transport listener should be unregistered")
	if tr.unsubCount("org-1") != 0 {
		t.Fatalf("teardown must not release unacquired interest, got %d", tr.unsubCount("org-1"))
	}
}

func TestAuthRefusedAfterDeadline(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	sess := newSession(conn, tr, attendeeResolver("org-1", uuid.New()), &fakeGuard{}, testSocketConfig(), nil, logg)

	sess.mu.Lock()
	sess.timedOut = true
	sess.mu.Unlock()

	sess.handleAuth(context.Background(), "tok")

	if sess.currentState() != stateUnauthenticated {
		t.Fatal("an expired deadline must block a late auth")
	}
	if tr.listenerCount() != 0 {
		t.Fatal("no listener may be registered after the deadline")
	}
	if conn.countFrames(msgAuthenticated) != 0 {
		t.Fatal("no authenticated frame may be emitted after the deadline")
	}
}

func TestSubRejectsMismatchedChannelType(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	eventID := uuid.New()
	guard := &fakeGuard{
		getFn: func(ctx context.Context, id uuid.UUID) (*events.Event, error) {
			return &events.Event{ID: id, OrgGuid: "org-1"}, nil
		},
		canAccessFn: func(ctx context.Context, eid, pid uuid.UUID, role enums.MemberRole) (bool, error) {
			return true, nil
		},
	}
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), guard, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)

	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: "org-1", ChannelType: "EVENT"})
	frame := conn.waitForFrame(t, msgSubError)
	if frame.Error == nil || frame.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation sub error, got %+v", frame.Error)
	}
	if tr.subCount("org-1") != 1 {
		t.Fatal("a mismatched sub must not reach the transport")
	}

	conn.sendClient(t, clientMessage{Type: msgSub, ChannelID: eventID.String(), ChannelType: "EVENT"})
	conn.waitForFrame(t, msgSubResponse)
	if tr.subCount(eventID.String()) != 1 {
		t.Fatal("a matching channel type must subscribe normally")
	}
}

func TestDisconnectTearsDownSubscriptions(t *testing.T) {
	conn := newFakeConn()
	tr := newFakeTransport()
	startSession(t, conn, tr, attendeeResolver("org-1", uuid.New()), &fakeGuard{}, testSocketConfig())

	conn.sendClient(t, clientMessage{Type: msgAuth, Token: "tok"})
	conn.waitForFrame(t, msgAuthenticated)
	conn.sendClient(t, clientMessage{Type: msgDisconnect})

	eventually(t, func() bool { return tr.unsubCount("org-1") == 1 }, "org interest should be released on disconnect")
	eventually(t, func() bool { return tr.listenerCount() == 0 }, "transport listener should be unregistered")
}
