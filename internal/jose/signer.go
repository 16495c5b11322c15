package jose

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"

	acmeErrors "github.com/yourusername/acmehook/errors"
)

// PublicKey is the RSA public material needed to build a JWK and verify
// the thumbprint the CA computes independently. It is the only shape of
// the account key the core ever sees; everything else about the key
// (parsing PEM/DER, generation) is the caller's concern.
type PublicKey struct {
	N *big.Int
	E int
}

// Signer produces RS256 signatures over the SHA-256 digest of a signing
// input using an account's private key. Callers inject a concrete implementation; the
// core never touches key material directly.
type Signer interface {
	Public() PublicKey
	// Sign returns an RSASSA-PKCS1-v1_5 signature over digest, which is
	// the SHA-256 hash of the signing input.
	Sign(digest []byte) ([]byte, error)
}

// RSASigner adapts a standard library RSA private key to [Signer].
type RSASigner struct {
	Key *rsa.PrivateKey
}

func (s RSASigner) Public() PublicKey {
	pub := s.Key.PublicKey
	return PublicKey{N: pub.N, E: pub.E}
}

func (s RSASigner) Sign(digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA256, digest)
	if err != nil {
		return nil, acmeErrors.Wrap(err)
	}
	return sig, nil
}

// b64uint encodes a big-endian unsigned integer with leading zero bytes
// stripped, then base64url without padding.
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.3.1.1
func b64uint(n *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(n.Bytes())
}

// b64uintFromExp encodes the public exponent the same way as the modulus.
func b64uintFromExp(e int) string {
	b := big.NewInt(int64(e))
	return b64uint(b)
}

// EncodeJWK returns the canonical JWK for pub. Field order in the
// underlying struct (e, kty, n) is what makes [Thumbprint] reproducible;
// it must never be reordered.
func EncodeJWK(pub PublicKey) JWK {
	return JWK{
		E:   b64uintFromExp(pub.E),
		Kty: "RSA",
		N:   b64uint(pub.N),
	}
}

// Thumbprint returns the base64url-encoded SHA-256 digest of the
// canonical JWK encoding of pub, per RFC 7638. It must serialize with no
// whitespace and in e, kty, n field order, since the CA recomputes this
// value independently and any deviation produces a mismatched key
// authorization.
func Thumbprint(pub PublicKey) (string, error) {
	jwk := EncodeJWK(pub)

	// json.Marshal on a struct with no embedded maps/interfaces emits
	// fields in declaration order with no inserted whitespace, which is
	// exactly the canonical form RFC 7638 requires.
	b, err := json.Marshal(jwk)
	if err != nil {
		return "", acmeErrors.Wrap(err)
	}

	sum := sha256.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// KeyAuthorization returns token + "." + thumbprint, the proof of
// possession embedded in every ACME challenge response.
// https://datatracker.ietf.org/doc/html/rfc8555#section-8.1
func KeyAuthorization(token string, pub PublicKey) (string, error) {
	thumb, err := Thumbprint(pub)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}

// DNS01Content returns the digest placed in the _acme-challenge TXT
// record for a dns-01 challenge.
// https://datatracker.ietf.org/doc/html/rfc8555#section-8.4
func DNS01Content(keyAuth string) string {
	sum := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
