// Package auth authenticates dm-gateway users.
//
// # Tokens
//
// Accounts and login live on the platform. It issues HS256 JWTs whose "sub"
// claim is the numeric user ID; this package only verifies them:
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	userID, err := verifier.Verify(token)
//
// Generate mints tokens for local development (the dm-gateway token command).
//
// # Transports
//
// REST requests go through HTTPAuthMiddleware, which requires
// "Authorization: Bearer <jwt>" and stores the user ID on the request
// context. Socket handshakes use TokenFromRequest, which also accepts the
// ?token= query parameter and a header without the "Bearer " prefix.
//
//	userID := auth.MustUserID(r.Context())
//
// # Errors
//
//   - ErrInvalidToken: bad signature, malformed token or non-numeric subject
//   - ErrExpiredToken: exp is in the past
//   - ErrMissingClaim: no sub claim
//   - ErrWeakSecret: secret shorter than MinSecretLength
package auth
