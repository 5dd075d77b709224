package core

import "github.com/nexora-app/pulse/internal/domain"

// TokenVerifier is the identity collaborator. It checks the credential
// presented at connect time and yields the identity bound to the
// connection for its whole life. Failures refuse the connection.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}
