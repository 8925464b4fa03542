package notify

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// privateIPRanges is the set of CIDR blocks considered non-public.
// Populated once at package init; used by ValidateWebhookURL.
var privateIPRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // link-local
		"::1/128",
		"fe80::/10", // link-local IPv6
		"fc00::/7",  // unique-local IPv6
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			privateIPRanges = append(privateIPRanges, network)
		}
	}
}

// LookupFunc resolves a hostname to addresses. Overridable in tests.
type LookupFunc func(host string) ([]net.IP, error)

// ValidateWebhookURL checks that a webhook destination is a safe, publicly
// routable HTTPS URL. Called once at configuration load, never per request;
// resolution is synchronous. Every resolved address is checked: a hostname
// with one public and one private record is rejected.
func ValidateWebhookURL(rawURL string) error {
	return validateWebhookURL(rawURL, net.LookupIP)
}

func validateWebhookURL(rawURL string, lookup LookupFunc) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("notify: invalid webhook URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("notify: webhook URL must use https scheme (got %q)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("notify: webhook URL must include a hostname")
	}
	if u.User != nil {
		return fmt.Errorf("notify: webhook URL must not include credentials")
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = lookup(host)
		if err != nil {
			return fmt.Errorf("notify: webhook hostname %q does not resolve: %w", host, err)
		}
		if len(ips) == 0 {
			return fmt.Errorf("notify: webhook hostname %q resolved to no addresses", host)
		}
	}

	for _, ip := range ips {
		for _, r := range privateIPRanges {
			if r.Contains(ip) {
				return fmt.Errorf("notify: webhook hostname %q resolves to private or loopback address %s", host, ip)
			}
		}
	}
	return nil
}
