package paddle

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Verifier validates that a webhook payload was signed by the Paddle
// account's private key. Verification is fail-closed: any malformed key,
// signature, or payload yields false, never an error to the caller.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier parses the account's PEM-encoded RSA public key
func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", pub)
	}

	return &Verifier{key: rsaKey}, nil
}

// Verify checks the p_signature field against the rest of the payload.
//
// Paddle signs the payload minus p_signature, with field names sorted by
// byte value and the result serialized as a PHP associative array (the
// processor's canonical encoding, not JSON). The signature is base64 RSA
// PKCS#1 v1.5 over a SHA-1 digest of that serialization.
func (v *Verifier) Verify(fields map[string]string) bool {
	signature := fields[SignatureField]
	if signature == "" {
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	keys := make([]string, 0, len(fields)-1)
	for k := range fields {
		if k != SignatureField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	digest := sha1.Sum([]byte(phpSerialize(keys, fields)))
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA1, digest[:], raw) == nil
}

// phpSerialize renders the fields as a PHP serialized associative array in
// the given key order, e.g. a:1:{s:5:"email";s:7:"a@b.com";}. Lengths are
// byte lengths. Hand-rolled because the encoding must follow the caller's
// key order exactly; a map-based serializer cannot guarantee that.
func phpSerialize(keys []string, fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "a:%d:{", len(keys))
	for _, k := range keys {
		// PHP serialization writes raw bytes between the quotes, no escaping
		fmt.Fprintf(&b, `s:%d:"%s";s:%d:"%s";`, len(k), k, len(fields[k]), fields[k])
	}
	b.WriteString("}")
	return b.String()
}
