package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

// Gateway terminates websocket connections and translates wire frames into
// coordinator and relay calls. One reader loop and one writer goroutine per
// connection; the writer drains the session's outbound queue.
type Gateway struct {
	tokens      *auth.TokenManager
	users       repository.UserRepository
	requests    repository.RequestRepository
	registry    *Registry
	coordinator *Coordinator
	relay       *Relay
	logger      *zap.Logger
}

// NewGateway wires the websocket entry point.
func NewGateway(tokens *auth.TokenManager, users repository.UserRepository, requests repository.RequestRepository, registry *Registry, coordinator *Coordinator, relay *Relay, logger *zap.Logger) *Gateway {
	return &Gateway{
		tokens:      tokens,
		users:       users,
		requests:    requests,
		registry:    registry,
		coordinator: coordinator,
		relay:       relay,
		logger:      logger,
	}
}

// Upgrade gates the HTTP route to websocket upgrade requests.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler returns the connection handler. Authentication uses the access
// token passed as a query parameter, since browser websocket clients cannot
// set an Authorization header.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		g.serve(conn)
	})
}

func (g *Gateway) serve(conn *websocket.Conn) {
	defer conn.Close()

	user, err := g.authenticate(conn.Query("token"))
	if err != nil {
		_ = conn.WriteJSON(OutboundEvent{Event: EventError, Data: ErrorPayload{Message: err.Error()}})
		return
	}

	identity := Identity{
		UserID:         user.ID,
		Label:          user.FullName(),
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
	}
	session := g.registry.Open(identity)
	defer g.registry.Close(session.ID())

	// Every connection lives in its personal room for directed notifications.
	g.coordinator.Join(session, UserRoom(user.ID), nil)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range session.Outbound() {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	g.logger.Info("websocket session opened",
		zap.String("session_id", session.ID()),
		zap.String("user_id", user.ID))

	g.readLoop(conn, session)

	g.registry.Close(session.ID())
	<-writerDone

	g.logger.Info("websocket session closed",
		zap.String("session_id", session.ID()),
		zap.String("user_id", user.ID))
}

func (g *Gateway) authenticate(token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.New("missing token")
	}
	claims, err := g.tokens.ParseAccess(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}
	user, err := g.users.GetByID(context.Background(), claims.UserID)
	if err != nil || user == nil || !user.Active {
		return nil, errors.New("invalid token")
	}
	return user, nil
}

func (g *Gateway) readLoop(conn *websocket.Conn, session *Session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame InboundEvent
		if err := json.Unmarshal(raw, &frame); err != nil {
			session.enqueue(errorEvent("malformed frame"))
			continue
		}

		if err := g.dispatch(session, frame); err != nil {
			session.enqueue(errorEvent(errorMessage(err)))
		}
	}
}

func (g *Gateway) dispatch(session *Session, frame InboundEvent) error {
	ctx := context.Background()

	switch frame.Event {
	case EventJoinRoom:
		roomID, err := decodeRoomID(frame.Data)
		if err != nil {
			return err
		}
		return g.join(ctx, session, roomID)

	case EventLeaveRoom:
		roomID, err := decodeRoomID(frame.Data)
		if err != nil {
			return err
		}
		g.coordinator.Leave(session.ID(), roomID)
		return nil

	case EventChatMessage:
		var payload ChatMessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return util.NewValidationError("malformed chat-message payload", nil)
		}
		_, err := g.relay.Deliver(ctx, session, payload)
		return err

	case EventTyping:
		var payload TypingPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return util.NewValidationError("malformed typing payload", nil)
		}
		if payload.RoomID == "" {
			return util.NewValidationError("roomId is required", nil)
		}
		g.coordinator.NotifyTyping(session.ID(), payload.RoomID, session.Identity().UserID, payload.IsTyping)
		return nil

	default:
		return util.NewValidationError("unknown event", map[string]any{"event": frame.Event})
	}
}

// join authorizes the room, hydrates ticket history, and registers the
// membership. History reaches the joiner before any post-join broadcast.
func (g *Gateway) join(ctx context.Context, session *Session, roomID string) error {
	identity := session.Identity()

	if err := g.authorizeRoom(ctx, identity, roomID); err != nil {
		return err
	}

	var preload []OutboundEvent
	if IsTicketRoom(roomID) {
		events, err := g.relay.Hydrate(ctx, roomID)
		if err != nil {
			return err
		}
		preload = events
	}

	g.coordinator.Join(session, roomID, preload)
	return nil
}

// authorizeRoom enforces room visibility: a personal room belongs to its
// user alone, and non-elevated users may only enter ticket rooms for
// requests they filed.
func (g *Gateway) authorizeRoom(ctx context.Context, identity Identity, roomID string) error {
	switch {
	case strings.HasPrefix(roomID, userRoomPrefix):
		if roomID != UserRoom(identity.UserID) && !identity.Role.Elevated() {
			return util.NewForbidden("cannot join another user's room")
		}
		return nil

	case IsTicketRoom(roomID):
		if identity.Role.Elevated() {
			return nil
		}
		ticketID, _ := TicketIDFromRoom(roomID)
		req, err := g.requests.GetByID(ctx, ticketID)
		if err != nil {
			return util.MapError(err)
		}
		if req.RequesterID != identity.UserID {
			return util.NewForbidden("cannot join this ticket room")
		}
		return nil

	default:
		return util.NewValidationError("unknown room", map[string]any{"roomId": roomID})
	}
}

func decodeRoomID(data json.RawMessage) (string, error) {
	// Clients send either a bare room id string or {"roomId": "..."}.
	var roomID string
	if err := json.Unmarshal(data, &roomID); err == nil && roomID != "" {
		return roomID, nil
	}
	var payload struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.RoomID != "" {
		return payload.RoomID, nil
	}
	return "", util.NewValidationError("roomId is required", nil)
}

func errorEvent(message string) OutboundEvent {
	return OutboundEvent{Event: EventError, Data: ErrorPayload{Message: message}}
}

func errorMessage(err error) string {
	if de := util.ToDomainError(err); de != nil {
		return de.Message
	}
	return "internal error"
}
