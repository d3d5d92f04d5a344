package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/internal/notifications"
	authsession "github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/channel"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/angelmondragon/kiosk-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type state int

const (
	stateUnauthenticated state = iota
	stateAuthenticated
	stateDisconnected
)

func (s state) label() string {
	switch s {
	case stateAuthenticated:
		return "authenticated"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unauthenticated"
	}
}

// transport is the shared process-wide channel client surface a session uses.
type transport interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	Listen(fn channel.ListenerFunc) func()
}

// eventGuard authorizes per-event channel subscriptions.
type eventGuard interface {
	Get(ctx context.Context, id uuid.UUID) (*events.Event, error)
	CanAccess(ctx context.Context, eventID, personID uuid.UUID, role enums.MemberRole) (bool, error)
}

// wsConn is the subset of *websocket.Conn a session drives.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session binds one live connection to its subscription set. It starts
// unauthenticated; the client must present a token before the auth deadline
// or the connection is closed.
type Session struct {
	id        string
	conn      wsConn
	transport transport
	sessions  authsession.Resolver
	events    eventGuard
	cfg       config.SocketConfig
	metrics   *metrics.SocketMetrics
	logg      *logger.Logger

	mu       sync.Mutex
	state    state
	timedOut bool
	profile  *authsession.Session
	subs     map[string]bool
	unlisten func()

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn wsConn, transport transport, sessions authsession.Resolver, guard eventGuard, cfg config.SocketConfig, socketMetrics *metrics.SocketMetrics, logg *logger.Logger) *Session {
	return &Session{
		id:        uuid.NewString(),
		conn:      conn,
		transport: transport,
		sessions:  sessions,
		events:    guard,
		cfg:       cfg,
		metrics:   socketMetrics,
		logg:      logg,
		state:     stateUnauthenticated,
		subs:      map[string]bool{},
		send:      make(chan []byte, cfg.SendBufferSize),
		done:      make(chan struct{}),
	}
}

// Run drives the connection until it closes. It blocks the caller.
func (s *Session) Run(ctx context.Context) {
	ctx = s.logg.WithConnID(ctx, s.id)
	s.metrics.ConnOpened(stateUnauthenticated.label())

	authTimer := time.AfterFunc(s.cfg.AuthTimeout, func() {
		// The expiry decision must be serialized with the auth transition:
		// once timedOut is set a late handleAuth may not authenticate.
		s.mu.Lock()
		expired := s.state == stateUnauthenticated
		if expired {
			s.timedOut = true
		}
		s.mu.Unlock()
		if !expired {
			return
		}
		s.logg.Warn(ctx, "socket auth deadline expired")
		s.metrics.IncAuthFailed()
		s.closeUnauthorized()
	})
	defer authTimer.Stop()

	go s.writePump()
	s.readPump(ctx)
	s.teardown(ctx)
}

// Close force-closes the connection and releases its subscriptions.
func (s *Session) Close() {
	s.teardown(context.Background())
}

func (s *Session) currentState() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logg.Warn(ctx, "socket frame is not valid JSON")
			continue
		}

		switch msg.Type {
		case msgAuth:
			s.handleAuth(ctx, msg.Token)
		case msgSub:
			s.handleSub(ctx, msg.ChannelID, msg.ChannelType)
		case msgUnsub:
			s.handleUnsub(ctx, msg.ChannelID)
		case msgDisconnect:
			return
		default:
			s.logg.Warn(ctx, "unknown socket message type")
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleAuth(ctx context.Context, token string) {
	if s.currentState() != stateUnauthenticated {
		return
	}
	if token == "" {
		s.metrics.IncAuthFailed()
		return
	}

	profile, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		// Stay unauthenticated; the auth deadline will close the
		// connection if the client cannot produce a valid token.
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "socket auth failed")
		s.metrics.IncAuthFailed()
		return
	}

	s.mu.Lock()
	if s.state != stateUnauthenticated || s.timedOut {
		s.mu.Unlock()
		return
	}
	s.state = stateAuthenticated
	s.profile = profile
	s.unlisten = s.transport.Listen(s.onChannelMessage)
	s.mu.Unlock()

	s.metrics.ConnClosed(stateUnauthenticated.label())
	s.metrics.ConnOpened(stateAuthenticated.label())

	ctx = s.logg.WithPersonID(s.logg.WithOrgGuid(ctx, profile.OrgGuid), profile.PersonID.String())
	// Mark local interest only once the transport accepted it; a failed
	// subscribe must not leave an entry whose teardown would decrement
	// refcounted interest this session never acquired.
	if err := s.transport.Subscribe(ctx, profile.OrgGuid); err != nil {
		s.logg.Error(ctx, "failed to subscribe org channel", err)
	} else {
		s.mu.Lock()
		live := s.state == stateAuthenticated
		if live {
			s.subs[profile.OrgGuid] = true
		}
		s.mu.Unlock()
		if !live {
			// Teardown already ran; give the interest straight back.
			if err := s.transport.Unsubscribe(context.WithoutCancel(ctx), profile.OrgGuid); err != nil {
				s.logg.Error(ctx, "failed to release channel interest", err)
			}
		}
	}
	s.logg.Info(ctx, "socket authenticated")
	s.sendMessage(ctx, serverMessage{Type: msgAuthenticated})
}

func (s *Session) handleSub(ctx context.Context, channelID, channelType string) {
	if s.currentState() != stateAuthenticated {
		s.sendSubError(ctx, channelID, pkgerrors.CodeUnauthorized, "authenticate before subscribing")
		return
	}
	if channelID == "" {
		s.sendSubError(ctx, channelID, pkgerrors.CodeValidation, "channelID required")
		return
	}

	s.mu.Lock()
	already := s.subs[channelID]
	profile := s.profile
	s.mu.Unlock()

	if !channelTypeMatches(channelType, channelID, profile.OrgGuid) {
		s.sendSubError(ctx, channelID, pkgerrors.CodeValidation, "channel type does not match channel id")
		return
	}

	if already {
		s.sendMessage(ctx, serverMessage{Type: msgSubResponse, ChannelID: channelID})
		return
	}

	allowed, err := s.authorize(ctx, profile, channelID)
	if err != nil {
		s.sendSubError(ctx, channelID, pkgerrors.CodeDependency, "authorization check unavailable")
		return
	}
	if !allowed {
		s.sendSubError(ctx, channelID, pkgerrors.CodeForbidden, "not authorized for this channel")
		return
	}

	if err := s.transport.Subscribe(ctx, channelID); err != nil {
		s.logg.Error(s.logg.WithChannel(ctx, channelID), "failed to subscribe channel", err)
		s.sendSubError(ctx, channelID, pkgerrors.CodeDependency, "subscription unavailable")
		return
	}

	s.mu.Lock()
	live := s.state == stateAuthenticated
	if live {
		s.subs[channelID] = true
	}
	s.mu.Unlock()
	if !live {
		if err := s.transport.Unsubscribe(context.WithoutCancel(ctx), channelID); err != nil {
			s.logg.Error(s.logg.WithChannel(ctx, channelID), "failed to release channel interest", err)
		}
		return
	}
	s.sendMessage(ctx, serverMessage{Type: msgSubResponse, ChannelID: channelID})
}

// channelTypeMatches checks the optional channel-type qualifier on a sub
// request against the channel the id resolves to.
func channelTypeMatches(channelType, channelID, orgGuid string) bool {
	if channelType == "" {
		return true
	}
	parsed, err := enums.ParseNotificationType(channelType)
	if err != nil {
		return false
	}
	switch parsed {
	case enums.NotificationTypeOrg:
		return channelID == orgGuid
	case enums.NotificationTypeEvent:
		_, err := uuid.Parse(channelID)
		return err == nil
	}
	return false
}

// authorize gates event channels: the person must be a participant, or hold
// manager rights over the event. The organization channel needs no check.
func (s *Session) authorize(ctx context.Context, profile *authsession.Session, channelID string) (bool, error) {
	if channelID == profile.OrgGuid {
		return true, nil
	}

	eventID, err := uuid.Parse(channelID)
	if err != nil {
		return false, nil
	}

	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	if event.OrgGuid != profile.OrgGuid {
		return false, nil
	}
	return s.events.CanAccess(ctx, eventID, profile.PersonID, profile.Role)
}

func (s *Session) handleUnsub(ctx context.Context, channelID string) {
	if channelID == "" {
		return
	}

	// Leaving a channel needs no authorization.
	s.mu.Lock()
	present := s.subs[channelID]
	delete(s.subs, channelID)
	s.mu.Unlock()

	if !present {
		return
	}
	if err := s.transport.Unsubscribe(ctx, channelID); err != nil {
		s.logg.Error(s.logg.WithChannel(ctx, channelID), "failed to release channel interest", err)
	}
}

// onChannelMessage re-emits transport traffic to the connection when this
// session is subscribed to the originating channel.
func (s *Session) onChannelMessage(msg channel.Message) {
	s.mu.Lock()
	subscribed := s.subs[msg.Channel]
	s.mu.Unlock()
	if !subscribed {
		return
	}

	kind := "message"
	var payload notifications.ChannelPayload
	if err := json.Unmarshal(msg.Payload, &payload); err == nil && payload.Message.Type != "" {
		kind = string(payload.Message.Type)
	}

	out, err := json.Marshal(serverMessage{
		Type:      kind,
		ChannelID: msg.Channel,
		Payload:   msg.Payload,
	})
	if err != nil {
		return
	}

	select {
	case s.send <- out:
		s.metrics.IncDelivered(kind)
	default:
		// Slow consumer: drop rather than stall every other connection.
		s.metrics.IncDropped(kind)
	}
}

func (s *Session) sendMessage(ctx context.Context, msg serverMessage) {
	out, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.send <- out:
	default:
		s.metrics.IncDropped(msg.Type)
		s.logg.Warn(s.logg.WithChannel(ctx, msg.ChannelID), "socket send buffer full")
	}
}

func (s *Session) sendSubError(ctx context.Context, channelID string, code pkgerrors.Code, message string) {
	s.sendMessage(ctx, serverMessage{
		Type:      msgSubError,
		ChannelID: channelID,
		Error:     &wireError{Code: string(code), Message: message},
	})
}

func (s *Session) closeUnauthorized() {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	payload := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
	_ = s.conn.WriteControl(websocket.CloseMessage, payload, deadline)
	_ = s.conn.Close()
}

func (s *Session) teardown(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		finalState := s.state
		s.state = stateDisconnected
		channels := make([]string, 0, len(s.subs))
		for ch := range s.subs {
			channels = append(channels, ch)
		}
		s.subs = map[string]bool{}
		unlisten := s.unlisten
		s.unlisten = nil
		s.mu.Unlock()

		if unlisten != nil {
			unlisten()
		}
		for _, ch := range channels {
			if err := s.transport.Unsubscribe(context.WithoutCancel(ctx), ch); err != nil {
				s.logg.Error(s.logg.WithChannel(ctx, ch), "failed to release channel interest", err)
			}
		}

		close(s.done)
		_ = s.conn.Close()
		s.metrics.ConnClosed(finalState.label())
		s.logg.Info(ctx, "socket disconnected")
	})
}
