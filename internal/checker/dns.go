package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var ErrNoRecords = errors.New("no TXT records found")

type DNSChecker struct {
	client     *dns.Client
	nameserver string
}

func NewDNSChecker(nameserver string, timeout time.Duration) *DNSChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if nameserver == "" {
		nameserver = "8.8.8.8:53"
	}
	return &DNSChecker{
		client:     &dns.Client{Timeout: timeout},
		nameserver: nameserver,
	}
}

// LookupTXT asks the configured nameserver directly so verification does not
// depend on the host resolver's cache. Multi-string records are joined.
func (d *DNSChecker) LookupTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	r, _, err := d.client.ExchangeContext(ctx, m, d.nameserver)
	if err != nil {
		return nil, fmt.Errorf("txt lookup %s: %w", name, err)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, ErrNoRecords
	default:
		return nil, fmt.Errorf("txt lookup %s: %s", name, dns.RcodeToString[r.Rcode])
	}

	var records []string
	for _, rr := range r.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	return records, nil
}
