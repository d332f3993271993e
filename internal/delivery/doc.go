// Package delivery routes direct messages and read notifications to live
// connections.
//
// The Router sits on top of the message service. Send persists through the
// service first and only then looks up the receiver in the presence
// registry:
//
//	router := delivery.NewRouter(svc, registry, logger)
//	sent, err := router.Send(ctx, senderID, receiverID, content)
//
// sent.Outcome is Delivered when the receiver's connection accepted the
// receiveMessage event and QueuedOnly otherwise. Either way the message is
// stored and unread; the receiver sees it on the next history read.
//
// Pushes never block the caller. Each connection owns a bounded outbound
// queue; when it is full or closed the event is dropped.
//
// History and MarkRead send messagesRead to the other participant after a
// read; History only does so when the page flipped something.
//
// events.go defines the {"event", "data"} envelope and payload shapes shared
// by the socket and REST handlers.
package delivery
