// ABOUTME: Router persists messages through the message service and pushes them to live connections
// ABOUTME: Pushes are non-blocking and at-most-once; an offline or slow receiver gets nothing live

package delivery

import (
	"context"
	"log/slog"

	"github.com/2389/dm-gateway/internal/conversation"
	"github.com/2389/dm-gateway/internal/metrics"
	"github.com/2389/dm-gateway/internal/store"
)

// Conn is a live connection that can accept outbound events.
// Push must not block; it reports false when the event was not queued.
type Conn interface {
	Push(ev *Event) bool
}

// Presence resolves a user to their live connection.
type Presence interface {
	HandleFor(userID int64) (Conn, bool)
}

// MessageService is the subset of conversation.Service the router drives.
type MessageService interface {
	GetUser(ctx context.Context, userID int64) (*store.User, error)
	Send(ctx context.Context, senderID, receiverID int64, content string) (*store.Message, error)
	History(ctx context.Context, userID, otherUserID int64, page, pageSize int) (*conversation.HistoryPage, error)
	MarkRead(ctx context.Context, userID, otherUserID int64) (int, error)
}

// Outcome reports whether a push reached a live connection.
type Outcome int

const (
	// QueuedOnly means the data is persisted but nothing was pushed live.
	QueuedOnly Outcome = iota
	// Delivered means the event was accepted by the receiver's connection.
	Delivered
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "queued_only"
}

// Router combines persistence and live delivery.
type Router struct {
	svc      MessageService
	presence Presence
	logger   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(svc MessageService, presence Presence, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		svc:      svc,
		presence: presence,
		logger:   logger.With("component", "delivery"),
	}
}

// Sent is the result of a successful Send.
type Sent struct {
	Message *store.Message
	// Sender is the profile attached to the pushed event.
	Sender  *store.UserProfile
	Outcome Outcome
}

// Send persists a message and pushes it to the receiver if they are online.
func (r *Router) Send(ctx context.Context, senderID, receiverID int64, content string) (*Sent, error) {
	msg, err := r.svc.Send(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, err
	}
	sender := r.profile(ctx, senderID)
	return &Sent{
		Message: msg,
		Sender:  sender,
		Outcome: r.Dispatch(ctx, msg, sender),
	}, nil
}

// profile loads the sender's public fields for the pushed payload,
// falling back to the bare ID.
func (r *Router) profile(ctx context.Context, userID int64) *store.UserProfile {
	user, err := r.svc.GetUser(ctx, userID)
	if err != nil {
		r.logger.Debug("sender profile unavailable", "user_id", userID, "error", err)
		return &store.UserProfile{ID: userID}
	}
	return user.Profile()
}

// Dispatch pushes an already-persisted message to its receiver as
// receiveMessage.
func (r *Router) Dispatch(ctx context.Context, msg *store.Message, sender *store.UserProfile) Outcome {
	ev := &Event{
		Name: EventReceiveMessage,
		Data: NewMessagePayload(msg, sender),
	}
	outcome := r.push(msg.ReceiverID, ev)
	metrics.Deliveries.WithLabelValues(outcome.String()).Inc()

	r.logger.Debug("message dispatched",
		"message_id", msg.ID,
		"receiver_id", msg.ReceiverID,
		"outcome", outcome.String())
	return outcome
}

// NotifyRead tells otherUserID that readerID has read their conversation.
func (r *Router) NotifyRead(ctx context.Context, readerID, otherUserID int64) Outcome {
	ev := &Event{
		Name: EventMessagesRead,
		Data: &MessagesReadPayload{UserID: readerID, OtherUserID: otherUserID},
	}
	outcome := r.push(otherUserID, ev)
	metrics.ReadNotifications.WithLabelValues(outcome.String()).Inc()
	return outcome
}

// MarkRead marks readerID's newest page with otherUserID as read and
// notifies otherUserID. The notification goes out on every successful call,
// even when nothing was unread.
func (r *Router) MarkRead(ctx context.Context, readerID, otherUserID int64) (int, Outcome, error) {
	n, err := r.svc.MarkRead(ctx, readerID, otherUserID)
	if err != nil {
		return 0, QueuedOnly, err
	}
	return n, r.NotifyRead(ctx, readerID, otherUserID), nil
}

// History reads one page of readerID's history with otherUserID. When the
// read flipped any message, otherUserID is told with messagesRead.
func (r *Router) History(ctx context.Context, readerID, otherUserID int64, page, pageSize int) (*conversation.HistoryPage, Outcome, error) {
	history, err := r.svc.History(ctx, readerID, otherUserID, page, pageSize)
	if err != nil {
		return nil, QueuedOnly, err
	}
	if history.MarkedRead == 0 {
		return history, QueuedOnly, nil
	}
	return history, r.NotifyRead(ctx, readerID, otherUserID), nil
}

func (r *Router) push(userID int64, ev *Event) Outcome {
	conn, ok := r.presence.HandleFor(userID)
	if !ok {
		return QueuedOnly
	}
	if !conn.Push(ev) {
		// Connection full or closing; the data is already stored.
		r.logger.Debug("dropped event for slow or closed connection",
			"user_id", userID,
			"event", ev.Name)
		return QueuedOnly
	}
	return Delivered
}
