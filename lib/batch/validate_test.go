package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAddress(t *testing.T) {
	valid := []string{
		"ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ",
		"SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ",
		"SN3GWX3NE58KJET25ZZ6D193D4D3EMXT5E8KXNJV",
		"SM1HTBVD3JG9C05J7HBJTHGR0GGW7KXW28M5JS8K",
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf",
		"3J98t1WpEZ73CNmQviecrnyiWrnqRhWN",
		"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		"  ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ  ", // trimmed
		"ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ.batch-transfer",
	}
	for _, addr := range valid {
		assert.True(t, ValidAddress(addr), "expected %q to be valid", addr)
	}

	invalid := []string{
		"",
		"   ",
		"XX2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ",
		"ST2J6ZY",    // too short
		"ST2J6ZY48I", // uppercase I excluded
		"ST2J6ZY48O", // uppercase O excluded
		"not an address",
	}
	for _, addr := range invalid {
		assert.False(t, ValidAddress(addr), "expected %q to be invalid", addr)
	}
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount("1"))
	assert.True(t, ValidAmount("0.00000001"))
	assert.True(t, ValidAmount(" 500000 "))

	assert.False(t, ValidAmount("0"))
	assert.False(t, ValidAmount("-5"))
	assert.False(t, ValidAmount(""))
	assert.False(t, ValidAmount("abc"))
	assert.False(t, ValidAmount("1,000"))
}

func TestNetworkPrefixes(t *testing.T) {
	assert.True(t, IsTestnetAddress("ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"))
	assert.True(t, IsTestnetAddress("SN3GWX3NE58KJET25ZZ6D193D4D3EMXT5E8KXNJV"))
	assert.False(t, IsTestnetAddress("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"))

	assert.True(t, IsMainnetAddress("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"))
	assert.True(t, IsMainnetAddress("SM1HTBVD3JG9C05J7HBJTHGR0GGW7KXW28M5JS8K"))
	assert.False(t, IsMainnetAddress("ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"))
}

func TestToBaseUnits(t *testing.T) {
	assert.Equal(t, int64(500000), ToBaseUnits("500000", UnitSats))
	assert.Equal(t, int64(100000000), ToBaseUnits("1", UnitBTC))
	assert.Equal(t, int64(50000000), ToBaseUnits("0.5", UnitSBTC))
	// fractional sats truncate
	assert.Equal(t, int64(1), ToBaseUnits("0.000000015", UnitBTC))
	assert.Equal(t, int64(0), ToBaseUnits("garbage", UnitSats))
}
