package browser

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

// fakeLookup resolves a few names without touching DNS
func fakeLookup(host string) ([]net.IP, error) {
	switch host {
	case "example.com", "google.com":
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	case "localhost":
		return []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}, nil
	case "intranet.corp":
		return []net.IP{net.ParseIP("10.1.2.3")}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	return nil, errors.New("no such host")
}

func TestURLPolicyStrict(t *testing.T) {
	policy := URLPolicy{BlockPrivate: true, lookup: fakeLookup}

	tests := []struct {
		name   string
		url    string
		errMsg string // empty means allowed
	}{
		{"valid https", "https://google.com", ""},
		{"valid http", "http://example.com", ""},
		{"valid with port", "https://example.com:8080/path", ""},

		{"file scheme", "file:///etc/passwd", "scheme"},
		{"ftp scheme", "ftp://example.com", "scheme"},
		{"javascript scheme", "javascript:alert(1)", "scheme"},
		{"data scheme", "data:text/html,<h1>hi</h1>", "scheme"},
		{"no scheme", "example.com", "scheme"},

		{"localhost", "http://localhost:8080", "loopback"},
		{"127.0.0.1", "http://127.0.0.1", "loopback"},
		{"127.x.x.x range", "http://127.255.255.255", "loopback"},
		{"ipv6 loopback", "http://[::1]", "loopback"},

		{"10.x.x.x", "http://10.0.0.1", "private"},
		{"172.16.x.x", "http://172.16.0.1", "private"},
		{"192.168.x.x", "http://192.168.1.1", "private"},
		{"name resolving private", "http://intranet.corp/", "private"},

		{"link-local", "http://169.254.1.1", "link-local"},
		{"aws metadata", "http://169.254.169.254/latest/meta-data/", "cloud metadata"},
		{"gcp metadata", "http://metadata.google.internal", "cloud metadata hostname"},
		{"0.0.0.0", "http://0.0.0.0", "unspecified"},

		{"empty host", "http:///path", "empty hostname"},
		{"unresolvable", "http://nowhere.invalid", "DNS resolution failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.url)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, errors.Is(err, protocol.ErrNavigationRejected))

			var safety *URLSafetyError
			require.True(t, errors.As(err, &safety))
			assert.Equal(t, tt.url, safety.URL)
		})
	}
}

func TestURLPolicyPermissive(t *testing.T) {
	policy := URLPolicy{lookup: func(string) ([]net.IP, error) {
		t.Fatal("permissive policy must not resolve hosts")
		return nil, nil
	}}

	assert.NoError(t, policy.Validate("http://localhost:3000/dashboard"))
	assert.NoError(t, policy.Validate("http://10.0.0.1"))

	err := policy.Validate("file:///etc/passwd")
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrNavigationRejected)
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700:4700::1111", false},
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"169.254.169.254", true},
		{"fe80::1", true},
		{"ff02::1", true},
		{"::ffff:127.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			require.NotNil(t, ip)
			reason := isBlockedIP(ip)
			assert.Equal(t, tt.blocked, reason != "", "reason=%q", reason)
		})
	}
}
