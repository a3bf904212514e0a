package browser

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// URLSafetyError represents a URL that was blocked for safety reasons
type URLSafetyError struct {
	URL    string
	Reason string
}

func (e *URLSafetyError) Error() string {
	return fmt.Sprintf("URL blocked: %s", e.Reason)
}

func (e *URLSafetyError) Unwrap() error { return protocol.ErrNavigationRejected }

// URLPolicy decides which addresses the browser may load. http and https
// are always required; BlockPrivate adds the network checks.
type URLPolicy struct {
	BlockPrivate bool
	// lookup resolves hosts; nil uses net.LookupIP
	lookup func(host string) ([]net.IP, error)
}

// Validate checks whether urlStr may be loaded.
//
// With BlockPrivate the hostname is resolved, which catches encoded IPs
// (2130706433, 0x7f000001, 0177.0.0.1, 127.1) and names that point at
// loopback, private, link-local, multicast or cloud metadata addresses.
func (p URLPolicy) Validate(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("scheme '%s' not allowed, only http/https", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &URLSafetyError{URL: urlStr, Reason: "empty hostname"}
	}
	if !p.BlockPrivate {
		return nil
	}

	if isCloudMetadataHost(host) {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
	}

	lookup := p.lookup
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil {
		// literal addresses need no DNS
		ip := net.ParseIP(host)
		if ip == nil {
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		ips = []net.IP{ip}
	}

	for _, ip := range ips {
		if reason := isBlockedIP(ip); reason != "" {
			L_debug("urlsafety: blocked IP", "url", urlStr, "host", host, "ip", ip.String(), "reason", reason)
			metrics.MetricFailWithReason("browser", "url_policy", "blocked_ip")
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip.String())}
		}
	}

	L_trace("urlsafety: URL passed validation", "url", urlStr, "host", host, "ips", len(ips))
	return nil
}

// isBlockedIP returns a reason string if the IP should be blocked, empty string if OK
func isBlockedIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address blocked"
	case ip.IsPrivate():
		return "private network address blocked"
	case ip.Equal(net.ParseIP("169.254.169.254")):
		return "cloud metadata address blocked"
	case ip.IsLinkLocalUnicast():
		return "link-local address blocked"
	case ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return "multicast address blocked"
	case ip.IsUnspecified():
		return "unspecified address blocked"
	}

	// IPv4-mapped IPv6 addresses - unwrap and check the IPv4
	if ip4 := ip.To4(); ip4 != nil && !ip.Equal(ip4) {
		if reason := isBlockedIP(ip4); reason != "" {
			return reason + " (IPv4-mapped)"
		}
	}
	return ""
}

var metadataHosts = []string{
	"metadata.google.internal", // GCP
	"metadata.goog",            // GCP alternate
	"kubernetes.default.svc",
	"kubernetes.default",
	"metadata",
}

// isCloudMetadataHost checks for known cloud metadata hostnames
func isCloudMetadataHost(host string) bool {
	host = strings.ToLower(host)
	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}
	return false
}
