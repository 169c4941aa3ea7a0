package webhook

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubLookup(t *testing.T, ips map[string]string) {
	t.Helper()
	orig := lookupIP
	lookupIP = func(host string) ([]net.IP, error) {
		ip, ok := ips[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		return []net.IP{net.ParseIP(ip)}, nil
	}
	t.Cleanup(func() { lookupIP = orig })
}

func TestValidateTargetURL(t *testing.T) {
	stubLookup(t, map[string]string{
		"cms.example.com":      "93.184.216.34",
		"internal.example.com": "10.1.2.3",
	})

	tests := []struct {
		name          string
		url           string
		allowInsecure bool
		wantErr       error
	}{
		{name: "valid https", url: "https://cms.example.com/hooks/shortlink"},
		{name: "port 443 allowed", url: "https://cms.example.com:443/hooks"},
		{name: "unresolvable host deferred", url: "https://unknown.example.org/hooks"},
		{name: "http rejected", url: "http://cms.example.com/hooks", wantErr: ErrInvalidScheme},
		{name: "ftp rejected", url: "ftp://cms.example.com/hooks", wantErr: ErrInvalidScheme},
		{name: "localhost blocked", url: "https://localhost/hooks", wantErr: ErrLocalhostBlocked},
		{name: ".local domain blocked", url: "https://myserver.local/hooks", wantErr: ErrLocalhostBlocked},
		{name: "private IP blocked", url: "https://internal.example.com/hooks", wantErr: ErrPrivateIP},
		{name: "non-standard port blocked", url: "https://cms.example.com:8443/hooks", wantErr: ErrInvalidPort},
		{name: "empty host", url: "https:///hooks", wantErr: ErrEmptyHost},
		{name: "malformed", url: "https://cms.example.com/%zz", wantErr: ErrInvalidURL},
		{name: "insecure allows http localhost", url: "http://localhost:8081/hooks", allowInsecure: true},
		{name: "insecure still needs http", url: "ftp://localhost/hooks", allowInsecure: true, wantErr: ErrInvalidScheme},
		{name: "insecure still needs host", url: "http:///hooks", allowInsecure: true, wantErr: ErrEmptyHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url, tt.allowInsecure)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"fd00::1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.blocked, isBlockedIP(net.ParseIP(tt.ip)))
		})
	}
}

func TestExtractHost(t *testing.T) {
	assert.Equal(t, "cms.example.com", ExtractHost("https://cms.example.com/hooks?token=x"))
	assert.Equal(t, "cms.example.com:443", ExtractHost("https://cms.example.com:443/v1"))
	assert.Equal(t, "", ExtractHost("relative/path"))
}
