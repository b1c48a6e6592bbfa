package source

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

const defaultMaxHostsPerRange = 256

// strictIPv4 only matches the dotted-quad shape. Octet ranges are checked in
// IsStrictIPv4.
var strictIPv4 = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

type ParseOptions struct {
	// IncludeIPv6 accepts IPv6 literals and prefixes next to IPv4 lines.
	IncludeIPv6 bool

	// ExpandCIDR turns a prefix line into its host addresses, capped at
	// MaxHostsPerRange. Without it a prefix line yields its address part only.
	ExpandCIDR       bool
	MaxHostsPerRange int
}

// IsStrictIPv4 reports whether s is four groups of 1-3 digits separated by
// dots with every group in 0-255.
func IsStrictIPv4(s string) bool {
	groups := strictIPv4.FindStringSubmatch(s)
	if groups == nil {
		return false
	}

	for _, group := range groups[1:] {
		octet, err := strconv.Atoi(group)
		if err != nil || octet > 255 {
			return false
		}
	}

	return true
}

// ParseCandidates turns a newline-delimited range list into candidate
// addresses. Document order is kept and duplicates are not removed. Lines of
// any length are read; an overlong line is malformed and dropped like any other.
func ParseCandidates(text string, opts ParseOptions) []string {
	var candidates []string
	for line := range strings.Lines(text) {
		candidates = append(candidates, parseLine(line, opts)...)
	}

	return candidates
}

func parseLine(raw string, opts ParseOptions) []string {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}

	parts := strings.Split(line, "/")
	if len(parts) > 2 {
		return nil
	}

	address := parts[0]
	maxBits := 32

	switch {
	case IsStrictIPv4(address):
	case opts.IncludeIPv6 && isIPv6Literal(address):
		maxBits = 128
	default:
		return nil
	}

	if len(parts) == 1 {
		return []string{address}
	}

	bits, ok := parsePrefixLength(parts[1], maxBits)
	if !ok {
		return nil
	}

	if !opts.ExpandCIDR {
		return []string{address}
	}

	return expandPrefix(address, bits, opts.MaxHostsPerRange)
}

func isIPv6Literal(s string) bool {
	if !strings.Contains(s, ":") {
		return false
	}
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is6() && addr.Zone() == ""
}

func parsePrefixLength(raw string, maxBits int) (int, bool) {
	if raw == "" || len(raw) > 3 {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	bits, err := strconv.Atoi(raw)
	if err != nil || bits > maxBits {
		return 0, false
	}
	return bits, true
}

// expandPrefix lists the addresses of address/bits starting at the masked
// network address. Addresses that netip cannot parse (leading zeros) are
// returned unexpanded.
func expandPrefix(address string, bits, maxHosts int) []string {
	if maxHosts <= 0 {
		maxHosts = defaultMaxHostsPerRange
	}

	addr, err := netip.ParseAddr(address)
	if err != nil {
		return []string{address}
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return []string{address}
	}

	hosts := make([]string, 0, min(maxHosts, 1024))
	for current := prefix.Addr(); current.IsValid() && prefix.Contains(current) && len(hosts) < maxHosts; current = current.Next() {
		hosts = append(hosts, current.String())
	}

	return hosts
}
