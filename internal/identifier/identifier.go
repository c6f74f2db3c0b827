// Package identifier issues opaque server-assigned identifiers for
// persisted entities.
package identifier

import "github.com/google/uuid"

// Provider abstracts id generation so tests can substitute deterministic
// sequences.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
