package contacts

import (
	"context"
	"errors"
	"strings"
)

// Repository defines directory persistence.
type Repository interface {
	Upsert(ctx context.Context, c Contact) (Contact, error)
	List(ctx context.Context, kind Kind) ([]Contact, error)
	Get(ctx context.Context, name string) (Contact, error)
	Delete(ctx context.Context, name string) error
}

// ErrNotFound indicates the contact does not exist.
var ErrNotFound = errors.New("contacts: not found")

// Service handles directory business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(c Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("contact name is required")
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return errors.New("unknown contact kind")
	}
	return nil
}

// Upsert inserts the contact or overwrites the existing entry with the same
// name. Last write wins; there is no field merge.
func (s *Service) Upsert(ctx context.Context, c Contact) (Contact, error) {
	if err := s.validate(c); err != nil {
		return Contact{}, err
	}
	if c.Kind == "" {
		c.Kind = KindClient
	}
	return s.repo.Upsert(ctx, c)
}

// List returns directory entries, optionally filtered by kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Contact, error) {
	if kind != "" && !kind.Valid() {
		return nil, errors.New("unknown contact kind")
	}
	return s.repo.List(ctx, kind)
}

// Get returns a contact by name.
func (s *Service) Get(ctx context.Context, name string) (Contact, error) {
	if strings.TrimSpace(name) == "" {
		return Contact{}, errors.New("contact name is required")
	}
	return s.repo.Get(ctx, name)
}

// Delete removes a contact by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("contact name is required")
	}
	return s.repo.Delete(ctx, name)
}
