package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type DomainKind string

const (
	KindSubdomain DomainKind = "subdomain"
	KindCustom    DomainKind = "custom"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

type SSLStatus string

const (
	SSLNone         SSLStatus = "none"
	SSLProvisioning SSLStatus = "provisioning"
	SSLActive       SSLStatus = "active"
	SSLExpired      SSLStatus = "expired"
)

// DefaultVerificationTTL is how long a freshly generated verification token stays valid.
const DefaultVerificationTTL = 72 * time.Hour

const verificationTokenBytes = 32

// TenantDomain is a host name bound to a tenant. All mutations go through the
// transition methods below; none of them perform I/O.
type TenantDomain struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	TenantID   uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	DomainName string     `json:"domain_name" db:"domain_name"`
	Kind       DomainKind `json:"kind" db:"kind"`
	IsPrimary  bool       `json:"is_primary" db:"is_primary"`

	// Verification
	VerificationStatus        VerificationStatus `json:"verification_status" db:"verification_status"`
	VerificationToken         *string            `json:"verification_token,omitempty" db:"verification_token"`
	VerificationExpiresAt     *time.Time         `json:"verification_expires_at,omitempty" db:"verification_expires_at"`
	VerificationAttempts      int                `json:"verification_attempts" db:"verification_attempts"`
	LastVerificationAttemptAt *time.Time         `json:"last_verification_attempt_at,omitempty" db:"last_verification_attempt_at"`
	VerifiedAt                *time.Time         `json:"verified_at,omitempty" db:"verified_at"`

	SSLStatus SSLStatus `json:"ssl_status" db:"ssl_status"`

	// Metadata
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// TenantDomainRecord is a domain row joined with the tenant that owns it.
type TenantDomainRecord struct {
	Domain TenantDomain
	Tenant TenantInfo
}

// NewSubdomain returns a platform subdomain. Subdomains are covered by the
// wildcard certificate, so they start verified with SSL active.
func NewSubdomain(tenantID uuid.UUID, name string, now time.Time) *TenantDomain {
	verifiedAt := now
	return &TenantDomain{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		DomainName:         NormalizeDomainName(name),
		Kind:               KindSubdomain,
		VerificationStatus: VerificationVerified,
		VerifiedAt:         &verifiedAt,
		SSLStatus:          SSLActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewCustomDomain returns an externally owned domain awaiting proof of ownership.
func NewCustomDomain(tenantID uuid.UUID, name string, now time.Time, ttl time.Duration) (*TenantDomain, error) {
	d := &TenantDomain{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		DomainName:         NormalizeDomainName(name),
		Kind:               KindCustom,
		VerificationStatus: VerificationPending,
		SSLStatus:          SSLNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := d.GenerateVerificationToken(now, ttl); err != nil {
		return nil, err
	}
	return d, nil
}

// IsActive reports whether the domain may be routed to.
func (d *TenantDomain) IsActive() bool {
	return d.DeletedAt == nil &&
		d.VerificationStatus == VerificationVerified &&
		d.SSLStatus == SSLActive
}

func (d *TenantDomain) TokenExpired(now time.Time) bool {
	return d.VerificationToken != nil &&
		d.VerificationExpiresAt != nil &&
		now.After(*d.VerificationExpiresAt)
}

func (d *TenantDomain) GenerateVerificationToken(now time.Time, ttl time.Duration) error {
	if d.VerificationStatus != VerificationPending {
		return d.stateError("generate verification token")
	}
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}

	token, err := newVerificationToken()
	if err != nil {
		return err
	}
	expiresAt := now.Add(ttl)

	d.VerificationToken = &token
	d.VerificationExpiresAt = &expiresAt
	d.VerificationAttempts = 0
	d.UpdatedAt = now
	return nil
}

func (d *TenantDomain) MarkVerified(now time.Time) error {
	if d.VerificationStatus != VerificationPending {
		return d.stateError("mark verified")
	}
	verifiedAt := now
	d.VerificationStatus = VerificationVerified
	d.VerificationToken = nil
	d.VerificationExpiresAt = nil
	d.VerificationAttempts = 0
	d.VerifiedAt = &verifiedAt
	d.UpdatedAt = now
	return nil
}

// MarkVerificationFailed keeps the token so the caller may decide whether a
// retry reuses it or generates a new one.
func (d *TenantDomain) MarkVerificationFailed(now time.Time) error {
	if d.VerificationStatus != VerificationPending {
		return d.stateError("mark verification failed")
	}
	d.VerificationStatus = VerificationFailed
	d.UpdatedAt = now
	return nil
}

func (d *TenantDomain) IncrementAttempt(now time.Time) error {
	if d.VerificationStatus != VerificationPending {
		return d.stateError("increment verification attempt")
	}
	attemptAt := now
	d.VerificationAttempts++
	d.LastVerificationAttemptAt = &attemptAt
	d.UpdatedAt = now
	return nil
}

// RetryVerification re-arms a failed domain with a fresh token.
func (d *TenantDomain) RetryVerification(now time.Time, ttl time.Duration) error {
	if d.VerificationStatus != VerificationFailed {
		return d.stateError("retry verification")
	}
	d.VerificationStatus = VerificationPending
	return d.GenerateVerificationToken(now, ttl)
}

func (d *TenantDomain) BeginSSLProvisioning(now time.Time) error {
	if d.VerificationStatus != VerificationVerified {
		return d.stateError("begin ssl provisioning")
	}
	if d.SSLStatus != SSLNone && d.SSLStatus != SSLExpired {
		return d.sslStateError("begin ssl provisioning")
	}
	d.SSLStatus = SSLProvisioning
	d.UpdatedAt = now
	return nil
}

func (d *TenantDomain) MarkSSLActive(now time.Time) error {
	if d.SSLStatus != SSLProvisioning {
		return d.sslStateError("mark ssl active")
	}
	d.SSLStatus = SSLActive
	d.UpdatedAt = now
	return nil
}

func (d *TenantDomain) MarkSSLExpired(now time.Time) error {
	if d.SSLStatus != SSLActive {
		return d.sslStateError("mark ssl expired")
	}
	d.SSLStatus = SSLExpired
	d.UpdatedAt = now
	return nil
}

func (d *TenantDomain) stateError(op string) error {
	return &StateError{Op: op, Domain: d.DomainName, From: string(d.VerificationStatus)}
}

func (d *TenantDomain) sslStateError(op string) error {
	return &StateError{Op: op, Domain: d.DomainName, From: "ssl " + string(d.SSLStatus)}
}

func newVerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
