// Package conversation implements the direct-message core: conversation
// identity, the unread ledger and the message service.
//
// # Conversation Identity
//
// Every pair of distinct users has exactly one conversation. CanonicalPair
// orders the two IDs so that (a, b) and (b, a) resolve to the same Pair:
//
//	pair, err := conversation.CanonicalPair(9, 5) // Pair{Low: 5, High: 9}
//
// A self-pair is rejected with ErrInvalidArgument.
//
// # Ledger
//
// The Ledger owns the conversation rows:
//
//   - GetOrCreate(ctx, a, b): lookup, insert if absent, re-read on a duplicate insert
//   - RecordMessage(ctx, conv, sender, messageID): receiver's counter +1, last message, updated_at
//   - ResetUnread(ctx, conv, reader): reader's counter to 0, no-op if already 0
//   - UnreadFor(conv, user): the user's counter
//
// Counter changes are single UPDATE statements in the store, so concurrent
// sends never lose an increment.
//
// # Service
//
// The Service is what the transports call:
//
//	svc := conversation.NewService(store, store, conversation.NewLedger(store, logger), opts, logger)
//
//   - Send(ctx, sender, receiver, content): validate, persist, update the ledger
//   - History(ctx, user, other, page, size): one page, oldest first; marks the
//     caller's unread messages read and resets their counter
//   - MarkRead(ctx, user, other): History on the newest page, returns the count flipped
//   - UnreadTotal(ctx, user): sum over all conversations
//   - ConversationsFor(ctx, user): summaries ordered by last activity
//
// The message row is the source of truth. Once it is stored, Send succeeds
// even if the ledger update fails; the failure is logged and counted.
//
// # Errors
//
//   - ErrInvalidArgument: bad content, self-addressed, bad paging
//   - ErrNotFound: unknown user
package conversation
