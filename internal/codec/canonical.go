// Package codec implements canonical JSON serialization and content digests.
//
// Canonical form: object keys sorted by Unicode codepoint, array order
// preserved, numbers/strings/booleans/null in minimal JSON form, UTF-8
// encoded. The digest of a value is the lowercase hex SHA-256 of its
// canonical bytes, prefixed with "sha256:".
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical returns the canonical JSON encoding of v.
//
// v is first round-tripped through encoding/json into a generic
// representation (map[string]interface{}, []interface{}, json.Number, ...)
// so struct field ordering and map iteration order never leak into the
// output.
func Canonical(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("codec: decode for canonicalization: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalString is Canonical rendered as a string.
func CanonicalString(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		return encodeCanonicalString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return codepointLess(keys[i], keys[j])
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("codec: unsupported type %T in canonical encoding", v)
	}
}

// encodeCanonicalString writes s as a JSON string using encoding/json's
// own escaping rules (so unicode, control chars, and quotes match the
// standard library's minimal form) without HTML-escaping angle brackets
// and ampersands, which the standard Marshal does by default.
func encodeCanonicalString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// json.Encoder always appends a trailing newline; strip it back off.
	var tmp bytes.Buffer
	tmpEnc := json.NewEncoder(&tmp)
	tmpEnc.SetEscapeHTML(false)
	if err := tmpEnc.Encode(s); err != nil {
		return fmt.Errorf("codec: encode string: %w", err)
	}
	out := tmp.Bytes()
	out = bytes.TrimSuffix(out, []byte("\n"))
	buf.Write(out)
	_ = enc
	return nil
}

func codepointLess(a, b string) bool {
	ra := []rune(a)
	rb := []rune(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] != rb[i] {
			return ra[i] < rb[i]
		}
	}
	return len(ra) < len(rb)
}

// Digest returns "sha256:" + lowercase hex SHA-256 of the canonical JSON
// encoding of v.
func Digest(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes returns "sha256:" + lowercase hex SHA-256 of raw bytes
// (no canonicalization). Used for content already in its final byte form,
// such as Digest's canonical JSON or a wave prompt's text.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// SHA256Hex returns the lowercase hex SHA-256 of s, unprefixed. No code in
// this module calls it; citation cids are computed by citations.Fingerprint.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
