package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"
)

type CertificateDetails struct {
	Subject      string
	Issuer       string
	ValidFrom    time.Time
	ValidTo      time.Time
	DaysToExpiry int
	Protocol     string

	// Trusted is set when the chain verifies for the host name at check time.
	Trusted bool
	Expired bool
}

type SSLChecker struct {
	timeout time.Duration
	port    string
	roots   *x509.CertPool
	now     func() time.Time

	dialAddress func(domain string) string
}

func NewSSLChecker(port string, timeout time.Duration) *SSLChecker {
	if port == "" {
		port = "443"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &SSLChecker{
		timeout: timeout,
		port:    port,
		now:     time.Now,
	}
	s.dialAddress = func(domain string) string {
		return net.JoinHostPort(domain, s.port)
	}
	return s
}

// Check fetches the certificate served for domain. The handshake itself does
// not verify, so an expired or untrusted certificate is still reported.
func (s *SSLChecker) Check(ctx context.Context, domain string) (*CertificateDetails, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.timeout},
		Config: &tls.Config{
			ServerName:         domain,
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", s.dialAddress(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("no certificates found")
	}

	cert := state.PeerCertificates[0]
	now := s.now()

	details := &CertificateDetails{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
		DaysToExpiry: int(cert.NotAfter.Sub(now).Hours() / 24),
		Protocol:     tlsVersionString(state.Version),
		Expired:      now.After(cert.NotAfter),
	}

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}

	_, verifyErr := cert.Verify(x509.VerifyOptions{
		DNSName:       domain,
		Roots:         s.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	details.Trusted = verifyErr == nil

	return details, nil
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}
