package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Serialized keys are JSON objects:
//
//	{"algorithm":"RS","keysize":256,"n":"c0ffee...","e":"10001"}
//
// algorithm and keysize come first, then the material fields of the key class
// in registry order. Numbers are lower-case hexadecimal with no sign, prefix or
// leading zeros. Decoders ignore fields they do not know, so records stay
// readable when fields are added.

const (
	fieldAlgorithm = "algorithm"
	fieldKeySize   = "keysize"

	// maxMaterialHexLen bounds a single numeric field. The largest field in
	// the registry is a 4096-bit RSA modulus.
	maxMaterialHexLen = 2048
)

// SerializedKey is the mapping form of a serialized key.
type SerializedKey struct {
	Algorithm Algorithm
	KeySize   int
	// Material maps field names to hexadecimal values. After parsing it holds
	// every string-valued field of the record, known or not.
	Material map[string]string
}

// ParseSerializedKey decodes the textual form into its mapping form.
// It checks the structure only: that the text is a JSON object, that
// algorithm is a string and keysize a JSON integer. Fields that are not
// strings are dropped from Material.
//
// Complexity: O(n) where n is input length. No I/O.
func ParseSerializedKey(data []byte) (SerializedKey, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return SerializedKey{}, fmt.Errorf("%w: not a JSON object: %v", ErrMalformedKey, err)
	}
	if raw == nil {
		return SerializedKey{}, fmt.Errorf("%w: not a JSON object", ErrMalformedKey)
	}

	algRaw, ok := raw[fieldAlgorithm]
	if !ok {
		return SerializedKey{}, fmt.Errorf("%w: missing field %q", ErrMalformedKey, fieldAlgorithm)
	}
	var alg string
	if err := json.Unmarshal(algRaw, &alg); err != nil {
		return SerializedKey{}, fmt.Errorf("%w: field %q must be a string", ErrMalformedKey, fieldAlgorithm)
	}

	ksRaw, ok := raw[fieldKeySize]
	if !ok {
		return SerializedKey{}, fmt.Errorf("%w: missing field %q", ErrMalformedKey, fieldKeySize)
	}
	keySize, err := strconv.Atoi(string(ksRaw))
	if err != nil {
		return SerializedKey{}, fmt.Errorf("%w: field %q must be an integer", ErrMalformedKey, fieldKeySize)
	}

	sk := SerializedKey{
		Algorithm: Algorithm(alg),
		KeySize:   keySize,
		Material:  make(map[string]string, len(raw)),
	}
	for name, v := range raw {
		if name == fieldAlgorithm || name == fieldKeySize {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		sk.Material[name] = s
	}
	return sk, nil
}

// String returns the canonical textual form. Known material fields are
// written in registry order; any others follow in lexical order.
func (sk SerializedKey) String() string {
	var order []string
	if p, err := Resolve(sk.Algorithm, sk.KeySize); err == nil {
		order = p.secretFields
	}

	seen := make(map[string]bool, len(sk.Material))
	var sb strings.Builder
	writeHeader(&sb, string(sk.Algorithm), sk.KeySize)
	for _, name := range order {
		if v, ok := sk.Material[name]; ok {
			writeField(&sb, name, v)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(sk.Material))
	for name := range sk.Material {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		writeField(&sb, name, sk.Material[name])
	}
	sb.WriteByte('}')
	return sb.String()
}

// MarshalJSON implements json.Marshaler using the canonical form.
func (sk SerializedKey) MarshalJSON() ([]byte, error) {
	return []byte(sk.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (sk *SerializedKey) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSerializedKey(data)
	if err != nil {
		return err
	}
	*sk = parsed
	return nil
}

// decode resolves the key class and parses the material fields a public or
// secret key of that class requires.
func (sk SerializedKey) decode(secret bool) (*Params, material, error) {
	p, err := Resolve(sk.Algorithm, sk.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	fields := p.publicFields
	if secret {
		fields = p.secretFields
	}

	m := make(material, len(fields))
	for _, name := range fields {
		s, ok := sk.Material[name]
		if !ok {
			m.wipe()
			return nil, nil, fmt.Errorf("%w: %s: missing field %q", ErrMalformedKey, p, name)
		}
		n, err := parseHexField(s)
		if err != nil {
			m.wipe()
			return nil, nil, fmt.Errorf("%w: %s: field %q: %v", ErrMalformedKey, p, name, err)
		}
		m[name] = n
	}
	return p, m, nil
}

func (m material) wipe() {
	for _, n := range m {
		zeroizeInt(n)
	}
}

// parseHexField accepts only hexadecimal digits, in either case.
func parseHexField(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	if len(s) > maxMaterialHexLen {
		return nil, fmt.Errorf("value too long (%d hex digits, max %d)", len(s), maxMaterialHexLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return nil, fmt.Errorf("invalid hex digit %q at offset %d", c, i)
		}
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex value")
	}
	return n, nil
}

// encodeKey writes the canonical form of a key from its numeric material.
func encodeKey(p *Params, fields []string, m material) string {
	var sb strings.Builder
	writeHeader(&sb, string(p.algorithm), p.keySize)
	for _, name := range fields {
		writeField(&sb, name, m[name].Text(16))
	}
	sb.WriteByte('}')
	return sb.String()
}

func writeHeader(sb *strings.Builder, alg string, keySize int) {
	sb.WriteString(`{"` + fieldAlgorithm + `":`)
	sb.WriteString(cramberry.EscapeJSONString(alg))
	sb.WriteString(`,"` + fieldKeySize + `":`)
	sb.WriteString(strconv.Itoa(keySize))
}

func writeField(sb *strings.Builder, name, value string) {
	sb.WriteByte(',')
	sb.WriteString(cramberry.EscapeJSONString(name))
	sb.WriteByte(':')
	sb.WriteString(cramberry.EscapeJSONString(value))
}
