// Package ids issues the time-ordered identifiers used for users, notes and connections.
package ids

import "github.com/google/uuid"

// Provider issues unique string identifiers.
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

// Sequence returns a Provider yielding the given identifiers in order, then an error.
// It exists for deterministic tests.
func Sequence(values ...string) Provider {
	return &sequenceProvider{values: values}
}

type sequenceProvider struct {
	values []string
	next   int
}

func (p *sequenceProvider) NewID() (string, error) {
	if p.next >= len(p.values) {
		return "", errExhausted
	}
	value := p.values[p.next]
	p.next++
	return value, nil
}
