package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomainName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shop.acme.example", "shop.acme.example"},
		{"  SHOP.Acme.Example  ", "shop.acme.example"},
		{"shop.acme.example:8443", "shop.acme.example"},
		{"shop.acme.example.", "shop.acme.example"},
		{"LOCALHOST:3000", "localhost"},
		{"127.0.0.1:80", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"::1", "::1"},
		{"host:notaport", "host:notaport"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomainName(tt.in))
		})
	}
}

func TestValidHostname(t *testing.T) {
	assert.True(t, ValidHostname("shop.acme.example"))
	assert.True(t, ValidHostname("a-b.example"))
	assert.False(t, ValidHostname(""))
	assert.False(t, ValidHostname("-bad.example"))
	assert.False(t, ValidHostname("bad..example"))
	assert.False(t, ValidHostname("evil.example/../x"))
	assert.False(t, ValidHostname("host:notaport"))
}

func TestTenantIDFromSlug(t *testing.T) {
	assert.Equal(t, TenantIDFromSlug("acme"), TenantIDFromSlug(" ACME "))
	assert.NotEqual(t, TenantIDFromSlug("acme"), TenantIDFromSlug("globex"))
}
