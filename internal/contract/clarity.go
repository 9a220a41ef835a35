package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Minimal Clarity value codec: just enough of the wire format to serialize
// call-read arguments (uints, principals, recipient tuples, lists) and to
// decode the results the batch-transfer contract returns (uints, bools,
// responses, optionals, tuples of uints).

// Clarity type prefixes.
const (
	cvUint              = 0x01
	cvBoolTrue          = 0x03
	cvBoolFalse         = 0x04
	cvStandardPrincipal = 0x05
	cvContractPrincipal = 0x06
	cvResponseOk        = 0x07
	cvResponseErr       = 0x08
	cvOptionalNone      = 0x09
	cvOptionalSome      = 0x0a
	cvList              = 0x0b
	cvTuple             = 0x0c
	cvStringASCII       = 0x0d
)

var errClarityTruncated = errors.New("truncated clarity value")

// clarityValue is a decoded Clarity result. Exactly one field group is
// meaningful depending on Type.
type clarityValue struct {
	Type  byte
	Uint  int64
	Bool  bool
	Inner *clarityValue           // response/optional payload
	Tuple map[string]clarityValue // tuple entries
	Str   string
}

// encodeUint serializes a Clarity uint (16-byte big-endian).
func encodeUint(v int64) []byte {
	out := make([]byte, 17)
	out[0] = cvUint
	binary.BigEndian.PutUint64(out[9:], uint64(v))
	return out
}

// encodePrincipal serializes a standard or contract principal from its
// c32check address form.
func encodePrincipal(addr string) ([]byte, error) {
	name := ""
	if i := strings.IndexByte(addr, '.'); i >= 0 {
		addr, name = addr[:i], addr[i+1:]
	}

	version, hash, err := c32CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("bad principal %q: %w", addr, err)
	}

	var buf bytes.Buffer
	if name == "" {
		buf.WriteByte(cvStandardPrincipal)
	} else {
		buf.WriteByte(cvContractPrincipal)
	}
	buf.WriteByte(version)
	buf.Write(hash)
	if name != "" {
		buf.WriteByte(byte(len(name)))
		buf.WriteString(name)
	}
	return buf.Bytes(), nil
}

// encodeTuple serializes a tuple with keys in lexicographic order, as the
// wire format requires.
func encodeTuple(entries map[string][]byte) []byte {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte(cvTuple)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(entries)))
	buf.Write(n[:])
	for _, k := range keys {
		buf.WriteByte(byte(len(k)))
		buf.WriteString(k)
		buf.Write(entries[k])
	}
	return buf.Bytes()
}

// encodeList serializes a list of already-encoded values.
func encodeList(items [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(cvList)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(items)))
	buf.Write(n[:])
	for _, it := range items {
		buf.Write(it)
	}
	return buf.Bytes()
}

// decodeClarity parses one value from data, returning it and the remainder.
func decodeClarity(data []byte) (clarityValue, []byte, error) {
	if len(data) == 0 {
		return clarityValue{}, nil, errClarityTruncated
	}
	t := data[0]
	rest := data[1:]

	switch t {
	case cvUint:
		if len(rest) < 16 {
			return clarityValue{}, nil, errClarityTruncated
		}
		v := int64(binary.BigEndian.Uint64(rest[8:16]))
		return clarityValue{Type: t, Uint: v}, rest[16:], nil

	case cvBoolTrue, cvBoolFalse:
		return clarityValue{Type: t, Bool: t == cvBoolTrue}, rest, nil

	case cvOptionalNone:
		return clarityValue{Type: t}, rest, nil

	case cvResponseOk, cvResponseErr, cvOptionalSome:
		inner, rem, err := decodeClarity(rest)
		if err != nil {
			return clarityValue{}, nil, err
		}
		return clarityValue{Type: t, Inner: &inner}, rem, nil

	case cvTuple:
		if len(rest) < 4 {
			return clarityValue{}, nil, errClarityTruncated
		}
		count := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		entries := make(map[string]clarityValue, count)
		for i := uint32(0); i < count; i++ {
			if len(rest) < 1 {
				return clarityValue{}, nil, errClarityTruncated
			}
			nameLen := int(rest[0])
			rest = rest[1:]
			if len(rest) < nameLen {
				return clarityValue{}, nil, errClarityTruncated
			}
			name := string(rest[:nameLen])
			rest = rest[nameLen:]
			var v clarityValue
			var err error
			v, rest, err = decodeClarity(rest)
			if err != nil {
				return clarityValue{}, nil, err
			}
			entries[name] = v
		}
		return clarityValue{Type: t, Tuple: entries}, rest, nil

	case cvStringASCII:
		if len(rest) < 4 {
			return clarityValue{}, nil, errClarityTruncated
		}
		strLen := int(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if len(rest) < strLen {
			return clarityValue{}, nil, errClarityTruncated
		}
		return clarityValue{Type: t, Str: string(rest[:strLen])}, rest[strLen:], nil

	default:
		return clarityValue{}, nil, fmt.Errorf("unsupported clarity type 0x%02x", t)
	}
}

// unwrap strips response/optional layers, returning the payload value.
// A response err is returned as-is so callers can map the error code.
func (v clarityValue) unwrap() clarityValue {
	cur := v
	for cur.Inner != nil && cur.Type != cvResponseErr {
		cur = *cur.Inner
	}
	return cur
}

// tupleUint reads a uint field out of a tuple value, zero when absent.
func (v clarityValue) tupleUint(key string) int64 {
	if v.Tuple == nil {
		return 0
	}
	return v.Tuple[key].Uint
}

// c32Alphabet is Crockford base32 as used by Stacks addresses.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var c32Lookup = func() [128]int8 {
	var table [128]int8
	for i := range table {
		table[i] = -1
	}
	for i, c := range c32Alphabet {
		table[c] = int8(i)
		if c >= 'A' && c <= 'Z' {
			table[c+32] = int8(i) // lowercase
		}
	}
	// Crockford substitutions
	table['O'], table['o'] = 0, 0
	table['L'], table['l'] = 1, 1
	table['I'], table['i'] = 1, 1
	return table
}()

// c32Decode converts a c32 string to bytes, padding the result with leading
// zero bytes up to size.
func c32Decode(s string, size int) ([]byte, error) {
	n := new(big.Int)
	for _, c := range s {
		if c >= 128 || c32Lookup[c] < 0 {
			return nil, fmt.Errorf("invalid c32 character %q", c)
		}
		n.Lsh(n, 5)
		n.Or(n, big.NewInt(int64(c32Lookup[c])))
	}
	raw := n.Bytes()
	if len(raw) > size {
		// More significant bytes than the caller expects; the top bytes
		// must be zero or the input was malformed.
		for _, b := range raw[:len(raw)-size] {
			if b != 0 {
				return nil, fmt.Errorf("c32 payload longer than %d bytes", size)
			}
		}
		raw = raw[len(raw)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(raw):], raw)
	return out, nil
}

// c32Encode converts bytes to their c32 string form without leading-zero
// compression; used for checksum round-trips in tests.
func c32Encode(data []byte) string {
	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		return "0"
	}
	var out []byte
	base := big.NewInt(32)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// c32CheckDecode parses a Stacks address ("S" + version char + c32 payload)
// into its version byte and 20-byte hash160, verifying the checksum.
func c32CheckDecode(addr string) (byte, []byte, error) {
	if len(addr) < 3 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, nil, errors.New("not a stacks address")
	}
	verIdx := c32Lookup[addr[1]]
	if verIdx < 0 {
		return 0, nil, errors.New("invalid version character")
	}
	version := byte(verIdx)

	payload, err := c32Decode(addr[2:], 24) // hash160 + 4-byte checksum
	if err != nil {
		return 0, nil, err
	}
	hash, checksum := payload[:20], payload[20:]

	want := c32Checksum(version, hash)
	if !bytes.Equal(checksum, want) {
		return 0, nil, errors.New("bad address checksum")
	}
	return version, hash, nil
}

func c32Checksum(version byte, data []byte) []byte {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, version)
	buf = append(buf, data...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:4]
}
