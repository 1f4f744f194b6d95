package adapter

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/roach88/crmsignal/internal/canon"
)

// normalizeFunc turns one vendor record into canonical fields and the
// vendor id.
type normalizeFunc func(r record) (id string, fields canon.Object, err error)

// variant describes one provider.
type variant struct {
	provider    string
	displayName string
	tokenPrefix string
	required    []string
	scopes      []string
	normalizers map[canon.Kind]normalizeFunc
}

// Base provides the behaviour shared by all provider variants: credential
// checks, connect, rate-limited fetching, normalization and filtering.
type Base struct {
	v       variant
	source  RecordSource
	limiter *rate.Limiter
}

func newBase(v variant, source RecordSource, opts Options) *Base {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Base{
		v:       v,
		source:  source,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Provider implements CrmAdapter.
func (b *Base) Provider() string {
	return b.v.provider
}

// SupportedKinds implements CrmAdapter. Kinds are in schema order.
func (b *Base) SupportedKinds() []canon.Kind {
	var kinds []canon.Kind
	for _, k := range canon.Kinds {
		if _, ok := b.v.normalizers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Supports reports whether kind can be fetched.
func (b *Base) Supports(kind canon.Kind) bool {
	_, ok := b.v.normalizers[kind]
	return ok
}

// ValidateCredentials implements CrmAdapter.
func (b *Base) ValidateCredentials(creds Credentials) error {
	var missing []string
	for _, key := range b.v.required {
		if strings.TrimSpace(creds[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &CredentialError{Provider: b.v.provider, Missing: missing}
	}
	return nil
}

// Connect implements CrmAdapter. Tokens are opaque: a provider prefix
// plus a random UUID.
func (b *Base) Connect(ctx context.Context, creds Credentials) (*ConnectResult, error) {
	if err := b.ValidateCredentials(creds); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user := User{Name: creds["userName"], Email: creds["email"]}
	if user.Name == "" {
		user.Name = b.v.displayName + " User"
	}
	org := Organization{Name: creds["organization"], ID: b.v.tokenPrefix + "_org_" + uuid.NewString()[:8]}
	if org.Name == "" {
		org.Name = b.v.displayName + " Organization"
	}

	return &ConnectResult{
		Provider:     b.v.provider,
		Token:        b.v.tokenPrefix + "_" + uuid.NewString(),
		User:         user,
		Organization: org,
		Scopes:       slices.Clone(b.v.scopes),
	}, nil
}

// Wait blocks until the rate limiter allows a vendor call.
func (b *Base) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// FetchEntities implements CrmAdapter.
func (b *Base) FetchEntities(ctx context.Context, conn canon.Connection, kind canon.Kind, filter Filter) ([]canon.Entity, error) {
	normalize, ok := b.v.normalizers[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w %q", b.v.provider, ErrUnsupportedKind, kind)
	}
	if err := b.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", b.v.provider, err)
	}

	raws, err := b.source.Records(ctx, conn, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s records: %w", b.v.provider, kind, err)
	}

	entities := make([]canon.Entity, 0, len(raws))
	for i, raw := range raws {
		id, fields, err := normalize(record(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: normalize %s[%d]: %w", b.v.provider, kind, i, err)
		}
		e := canon.NewEntity(kind, id, fields, canon.Source{
			Type:       b.v.provider,
			EntityType: kind,
			ID:         id,
		})
		if !filter.keep(e) {
			continue
		}
		entities = append(entities, e)
		if filter.Limit > 0 && len(entities) == filter.Limit {
			break
		}
	}
	return entities, nil
}

// activityFields are checked in order to find when a record last changed.
var activityFields = []string{"updatedAt", "occurredAt", "completedAt", "sharedAt", "createdAt"}

func (f Filter) keep(e canon.Entity) bool {
	if f.Status != "" {
		status, ok := e.StringField("status")
		if !ok || !strings.EqualFold(status, f.Status) {
			return false
		}
	}
	if !f.Since.IsZero() {
		if at, ok := lastActivity(e); ok && at.Before(f.Since) {
			return false
		}
	}
	return true
}

func lastActivity(e canon.Entity) (time.Time, bool) {
	for _, field := range activityFields {
		if t, ok := e.TimeField(field); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
