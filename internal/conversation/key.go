// ABOUTME: Canonical identity for the conversation between two users
// ABOUTME: (a, b) and (b, a) always map to the same ordered Pair

package conversation

import (
	"fmt"

	"github.com/2389/dm-gateway/internal/store"
)

// Pair identifies a conversation by its two participants, Low < High.
type Pair struct {
	Low  int64
	High int64
}

// CanonicalPair orders two distinct user IDs. A user cannot converse with
// themselves, so a == b is an ErrInvalidArgument.
func CanonicalPair(a, b int64) (Pair, error) {
	if a == b {
		return Pair{}, fmt.Errorf("%w: conversation needs two distinct users (got %d twice)", ErrInvalidArgument, a)
	}
	if a < b {
		return Pair{Low: a, High: b}, nil
	}
	return Pair{Low: b, High: a}, nil
}

// PairOf returns the pair stored on a conversation row.
func PairOf(conv *store.Conversation) Pair {
	return Pair{Low: conv.UserLow, High: conv.UserHigh}
}

// Contains reports whether userID participates in the pair.
func (p Pair) Contains(userID int64) bool {
	return userID == p.Low || userID == p.High
}

// SlotOf returns the unread slot owned by userID.
func (p Pair) SlotOf(userID int64) (store.UnreadSlot, bool) {
	switch userID {
	case p.Low:
		return store.SlotLow, true
	case p.High:
		return store.SlotHigh, true
	}
	return 0, false
}

// Other returns the participant that is not userID, or 0 when userID is not
// in the pair.
func (p Pair) Other(userID int64) int64 {
	switch userID {
	case p.Low:
		return p.High
	case p.High:
		return p.Low
	}
	return 0
}

func (p Pair) String() string {
	return fmt.Sprintf("%d:%d", p.Low, p.High)
}
