package gateway

import (
	"crypto/sha256"
	"crypto/subtle"

	"ordito/internal/domain"
)

// ClientInfo describes the caller behind a connection.
type ClientInfo struct {
	Name     string
	ReadOnly bool
}

// Authenticator resolves a connection token to a client.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// TokenEntry binds a static token to a client name.
type TokenEntry struct {
	Token    string
	Name     string
	ReadOnly bool
}

// StaticTokenAuth checks tokens against a fixed list. Tokens are kept as
// SHA-256 digests and every entry is compared, so neither the token length
// nor its position in the list shows in the timing.
type StaticTokenAuth struct {
	digests [][sha256.Size]byte
	clients []*ClientInfo
}

// NewStaticTokenAuth skips entries with an empty token.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(e.Token)))
		a.clients = append(a.clients, &ClientInfo{Name: e.Name, ReadOnly: e.ReadOnly})
	}
	return a
}

// Authenticate returns the client owning token, or domain.ErrGatewayAuthFailed.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	sum := sha256.Sum256([]byte(token))
	match := -1
	for i := range s.digests {
		if subtle.ConstantTimeCompare(sum[:], s.digests[i][:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 || token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	return s.clients[match], nil
}

// readOnlyMethods may be called with a read-only token.
var readOnlyMethods = map[string]bool{
	MethodGroupList:        true,
	MethodScheduleList:     true,
	MethodScheduleValidate: true,
	MethodDataExport:       true,
}

// authorize rejects methods the client may not call.
func authorize(client *ClientInfo, method string) error {
	if client != nil && client.ReadOnly && !readOnlyMethods[method] {
		return domain.NewSubSystemError("gateway", method, domain.ErrForbidden, "token "+client.Name+" is read-only")
	}
	return nil
}
