package batch

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// addressPattern accepts Stacks testnet (ST, SN) and mainnet (SP, SM)
// principals plus legacy and segwit Bitcoin prefixes, each followed by at
// least eight characters from the shared base58-ish class.
var addressPattern = regexp.MustCompile(`^(1|3|bc1|BC1|SP|SM|ST|SN)[a-zA-HJ-NP-Z0-9]{8,}$`)

// ValidAddress reports whether addr is an acceptable recipient address.
// Contract principals carry a ".name" suffix; only the address part before
// the first dot is checked.
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	if i := strings.IndexByte(addr, '.'); i >= 0 {
		addr = addr[:i]
	}
	return addressPattern.MatchString(addr)
}

// ValidAmount reports whether the raw amount string parses to a number
// greater than zero.
func ValidAmount(amount string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// IsTestnetAddress reports whether a Stacks address belongs to testnet.
func IsTestnetAddress(addr string) bool {
	return strings.HasPrefix(addr, "ST") || strings.HasPrefix(addr, "SN")
}

// IsMainnetAddress reports whether a Stacks address belongs to mainnet.
func IsMainnetAddress(addr string) bool {
	return strings.HasPrefix(addr, "SP") || strings.HasPrefix(addr, "SM")
}
