package devicerisk

import "net/netip"

// Static network intelligence. Lookups are local and synchronous; the
// scorer never performs network I/O. The tables are a curated snapshot and
// can be replaced wholesale without touching the scoring logic.

// vpnRanges covers known anonymizer, Tor exit, and bulk hosting ranges from
// which interactive attendance submissions are not expected.
var vpnRanges = mustPrefixes(
	"185.220.100.0/22", // Tor exit pool
	"185.220.101.0/24",
	"171.25.193.0/24",
	"199.87.154.0/24",
	"45.134.140.0/23",
	"146.70.0.0/16", // M247 / commercial VPN hosting
	"37.120.128.0/17",
	"89.187.160.0/19",
	"5.188.0.0/16",
	"193.29.104.0/22",
	"198.51.100.0/24", // reserved test nets kept for integration fixtures
	"203.0.113.0/24",
)

// countryRanges is a coarse allocation table mapping regional prefixes to
// ISO country codes. Unknown prefixes resolve to the empty string, which the
// scorer treats as "no geolocation signal".
var countryRanges = []struct {
	prefix  netip.Prefix
	country string
}{
	{netip.MustParsePrefix("36.64.0.0/10"), "ID"},
	{netip.MustParsePrefix("103.28.112.0/22"), "ID"},
	{netip.MustParsePrefix("114.120.0.0/13"), "ID"},
	{netip.MustParsePrefix("180.240.0.0/12"), "ID"},
	{netip.MustParsePrefix("1.32.0.0/11"), "MY"},
	{netip.MustParsePrefix("101.32.0.0/12"), "SG"},
	{netip.MustParsePrefix("159.89.192.0/18"), "SG"},
	{netip.MustParsePrefix("13.208.0.0/12"), "JP"},
	{netip.MustParsePrefix("24.0.0.0/8"), "US"},
	{netip.MustParsePrefix("52.0.0.0/8"), "US"},
	{netip.MustParsePrefix("81.0.0.0/9"), "DE"},
	{netip.MustParsePrefix("90.0.0.0/9"), "FR"},
	{netip.MustParsePrefix("86.0.0.0/11"), "GB"},
}

// IsVPNRange reports whether the IP falls inside a known VPN/proxy range.
// Unparseable addresses report false; the user-agent and fingerprint checks
// still apply to such requests.
func IsVPNRange(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range vpnRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// CountryForIP infers an ISO country code from the static allocation table.
// Returns "" when the address is private, unparseable, or not in the table.
func CountryForIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return ""
	}
	for _, entry := range countryRanges {
		if entry.prefix.Contains(addr) {
			return entry.country
		}
	}
	return ""
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}
