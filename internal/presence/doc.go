// Package presence tracks which users currently hold a live real-time
// connection.
//
// Registry is generic over the handle type so it can be exercised with plain
// values in tests and with socket connections in the gateway:
//
//	reg := presence.NewRegistry[delivery.Conn](logger)
//	if old, ok := reg.Connect(userID, conn); ok {
//		old.Close()
//	}
//	defer reg.Disconnect(conn)
//
// Each user has at most one handle. A second connection for the same user
// replaces the first; the replaced handle's later Disconnect is a no-op.
package presence
