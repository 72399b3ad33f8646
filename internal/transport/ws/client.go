package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/semachat/sema/internal/domain"
	"github.com/semachat/sema/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 16384
	sendBufSize    = 256
)

// Services bundles the components a connection dispatches into.
type Services struct {
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Calls         *service.CallService
	Typing        *service.TypingService
	Presence      *service.PresenceService
}

// Client represents a single WebSocket connection. One read goroutine per
// connection dispatches inbound events into the owning component; outbound
// events flow through the buffered send channel.
type Client struct {
	id       uuid.UUID
	userID   uuid.UUID
	registry *Registry
	services *Services
	conn     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(registry *Registry, services *Services, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		id:       uuid.New(),
		userID:   userID,
		registry: registry,
		services: services,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		done:     make(chan struct{}),
	}
}

// close stops the write pump. Called by the registry on unregister; safe to
// call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue buffers an outbound frame without blocking. A client that cannot
// keep up drops frames rather than stalling the sender.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Stringer("user", c.userID).Stringer("conn", c.id).Msg("ws: send buffer full, dropping frame")
	}
}

// ReadPump reads events from the socket until it closes, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Debug().Err(err).Stringer("user", c.userID).Msg("ws: read error")
			}
			return
		}
		c.handleEvent(&event)
	}
}

// WritePump writes frames from the send channel to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Debug().Err(err).Stringer("user", c.userID).Msg("ws: write error")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes one inbound client event. Failures affect only this
// connection's in-flight call; nothing here is fatal to the process.
func (c *Client) handleEvent(event *Event) {
	ctx := context.Background()

	switch event.Type {
	case EventSendMessage:
		var p SendMessagePayload
		if !c.decode(event, &p) {
			return
		}
		msg, err := c.services.Messages.Send(ctx, c.userID, p.ConversationID, p.Content, p.Nonce)
		if err != nil {
			c.sendError(err)
			return
		}
		// Echo the stored message (server-assigned id and timestamp) back to
		// the sending connection in the same canonical shape recipients get.
		c.reply(EventNewMessage, NewMessagePayload{
			ConversationID: msg.ConversationID,
			Message:        msg.ViewFor(c.userID),
		})

	case EventDeliveredAck:
		var p DeliveredAckPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Messages.AcknowledgeDelivered(ctx, c.userID, p.ConversationID, p.MessageID); err != nil {
			c.sendError(err)
		}

	case EventMarkRead:
		var p MarkReadPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Messages.MarkRead(ctx, c.userID, p.ConversationID); err != nil {
			c.sendError(err)
		}

	case EventEditMessage:
		var p EditMessagePayload
		if !c.decode(event, &p) {
			return
		}
		if _, err := c.services.Messages.Edit(ctx, c.userID, p.ConversationID, p.MessageID, p.NewContent); err != nil {
			if errors.Is(err, service.ErrAlreadyDeleted) {
				c.sendErrorState(err, MessageDeletedPayload{ConversationID: p.ConversationID, MessageID: p.MessageID})
				return
			}
			c.sendError(err)
		}

	case EventDeleteMessage:
		var p DeleteMessagePayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Messages.Delete(ctx, c.userID, p.ConversationID, p.MessageID); err != nil {
			c.sendError(err)
		}

	case EventTypingStart:
		var p TypingPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Typing.Start(ctx, p.ConversationID, c.userID); err != nil {
			c.sendError(err)
		}

	case EventTypingStop:
		var p TypingPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Typing.Stop(ctx, p.ConversationID, c.userID); err != nil {
			c.sendError(err)
		}

	case EventCallRequest:
		var p CallRequestPayload
		if !c.decode(event, &p) {
			return
		}
		sess, err := c.services.Calls.Request(ctx, c.userID, p.CalleeID, p.Media, p.Offer)
		if err != nil {
			c.sendError(err)
			return
		}
		c.reply(EventCallRinging, CallRingingPayload{CallID: sess.ID})

	case EventCallRinging:
		var p CallRingingPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Calls.Ringing(ctx, p.CallID, c.userID); err != nil {
			c.sendError(err)
		}

	case EventCallRespond:
		var p CallRespondPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Calls.Respond(ctx, p.CallID, c.userID, p.Accept, p.Answer); err != nil {
			c.sendCallError(err)
		}

	case EventCallConnected:
		var p CallConnectedPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Calls.MediaEstablished(ctx, p.CallID, c.userID); err != nil {
			c.sendCallError(err)
		}

	case EventIceCandidate:
		var p IceCandidatePayload
		if !c.decode(event, &p) {
			return
		}
		// Late candidates are expected; never surfaced as errors.
		c.services.Calls.RelayICE(ctx, p.CallID, c.userID, p.Candidate)

	case EventCallEnd:
		var p CallEndPayload
		if !c.decode(event, &p) {
			return
		}
		if err := c.services.Calls.End(ctx, p.CallID, c.userID, p.Reason); err != nil {
			c.sendCallError(err)
		}

	case EventStatusSet:
		var p StatusSetPayload
		if !c.decode(event, &p) {
			return
		}
		c.services.Presence.SetAway(c.userID, p.Status == domain.PresenceAway)

	case EventPing:
		data, _ := json.Marshal(Event{Type: EventPong})
		c.enqueue(data)

	default:
		c.sendErrorCode("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) decode(event *Event, into any) bool {
	if err := json.Unmarshal(event.Payload, into); err != nil {
		c.sendErrorCode("INVALID_PAYLOAD", "invalid "+event.Type+" payload")
		return false
	}
	return true
}

func (c *Client) reply(eventType string, payload any) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// sendCallError attaches the user's current call session, if any, to
// stale-state rejections so the client can resync its call UI.
func (c *Client) sendCallError(err error) {
	if errors.Is(err, service.ErrInvalidState) || errors.Is(err, service.ErrCallNotFound) {
		if sess, ok := c.services.Calls.ActiveCall(c.userID); ok {
			c.sendErrorState(err, sess)
			return
		}
	}
	c.sendError(err)
}

// sendError maps a service error onto the wire taxonomy. Unrecognized errors
// are store/collaborator failures: transient, safe for the client to retry
// because every underlying operation is idempotent or conditional.
func (c *Client) sendError(err error) {
	c.sendErrorState(err, nil)
}

func (c *Client) sendErrorState(err error, state any) {
	code := "STORE_UNAVAILABLE"
	switch {
	case errors.Is(err, service.ErrValidation):
		code = "VALIDATION"
	case errors.Is(err, service.ErrNotParticipant):
		code = "NOT_PARTICIPANT"
	case errors.Is(err, service.ErrNotAuthor):
		code = "NOT_AUTHOR"
	case errors.Is(err, service.ErrAlreadyDeleted):
		code = "ALREADY_DELETED"
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrCallNotFound):
		code = "INVALID_STATE"
	case errors.Is(err, service.ErrBusy):
		code = "BUSY"
	case errors.Is(err, service.ErrCannotSelf):
		code = "VALIDATION"
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrMessageNotFound):
		code = "NOT_FOUND"
	default:
		log.Error().Err(err).Stringer("user", c.userID).Msg("ws: operation failed")
	}
	c.reply(EventError, ErrorPayload{Code: code, Message: err.Error(), State: state})
}

func (c *Client) sendErrorCode(code, message string) {
	c.reply(EventError, ErrorPayload{Code: code, Message: message})
}
