// Package dedupe suppresses resent real-time messages.
//
// Socket clients may attach a clientMessageId to sendMessage. When a flaky
// connection makes the client resend, the gateway claims (sender, id) in a
// Cache; a second claim within the TTL fails and the message is not stored
// again. IDs are scoped per sender, so two users may pick the same ID.
package dedupe
