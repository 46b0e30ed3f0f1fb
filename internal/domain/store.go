package domain

import (
	"context"
	"time"
)

// OpportunityStore persists triangular opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
}

// CredentialStore maps an exchange identifier to its API credentials.
type CredentialStore interface {
	Get(ctx context.Context, exchangeID string) (Credentials, error)
	Put(ctx context.Context, exchangeID string, creds Credentials) error
	List(ctx context.Context) ([]string, error)
}

// Publisher pushes an encoded event to an external stream.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}
