// Package adapter normalizes vendor CRM records into canonical entities.
//
// Each supported CRM has one CrmAdapter variant. Variants are selected
// through a Registry keyed by provider name; nothing outside this package
// switches on provider strings. Vendor records are read from a
// RecordSource, so the engine never sees vendor field names.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/crmsignal/internal/canon"
)

// Sentinel errors.
var (
	// ErrUnsupportedProvider is returned for a provider with no registered adapter.
	ErrUnsupportedProvider = errors.New("unsupported CRM provider")

	// ErrUnsupportedKind is returned when an adapter cannot fetch a kind.
	ErrUnsupportedKind = errors.New("unsupported entity kind")

	// ErrInvalidCredentials is matched by every *CredentialError.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credentials are the provider-specific secrets supplied on connect,
// e.g. {"apiKey": "..."} for HubSpot.
type Credentials map[string]string

// CredentialError lists the credential keys a provider requires but did
// not receive.
type CredentialError struct {
	Provider string
	Missing  []string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid credentials for %s: missing %s", e.Provider, strings.Join(e.Missing, ", "))
}

func (e *CredentialError) Unwrap() error { return ErrInvalidCredentials }

// User is the CRM user a connection authenticated as.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Organization is the CRM organization a connection belongs to.
type Organization struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// ConnectResult is returned by a successful Connect.
type ConnectResult struct {
	Provider     string       `json:"provider"`
	Token        string       `json:"token"`
	User         User         `json:"user"`
	Organization Organization `json:"organization"`
	Scopes       []string     `json:"scopes,omitempty"`
}

// Filter narrows a fetch. The zero Filter returns every record.
type Filter struct {
	// Since drops records whose last activity is before it.
	Since time.Time

	// Status keeps only records whose status equals it (case-insensitive).
	Status string

	// Limit caps the number of records returned; 0 means no cap.
	Limit int
}

// CrmAdapter is the capability set every CRM variant implements.
type CrmAdapter interface {
	// Provider returns the lower-case provider name, e.g. "salesforce".
	Provider() string

	// ValidateCredentials checks that creds hold every key the provider needs.
	ValidateCredentials(creds Credentials) error

	// Connect authenticates with creds and returns a connection token.
	Connect(ctx context.Context, creds Credentials) (*ConnectResult, error)

	// FetchEntities returns the normalized entities of one kind.
	FetchEntities(ctx context.Context, conn canon.Connection, kind canon.Kind, filter Filter) ([]canon.Entity, error)

	// SupportedKinds lists the kinds FetchEntities accepts.
	SupportedKinds() []canon.Kind
}
