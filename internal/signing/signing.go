// Package signing produces and verifies the tamper-evident proof attached to
// a completed letter. Proofs are HMAC-SHA256 over canonical bytes, carried as
// two independent base64url URL segments so there is no separator to confuse.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/devnolife/sakti-dashboard-sub017/internal/canonical"
)

var (
	ErrMalformedToken   = errors.New("signing: malformed proof token")
	ErrInvalidSignature = errors.New("signing: signature mismatch")
	ErrKeyExpired       = errors.New("signing: signing key no longer accepted")
	ErrNoActiveKey      = errors.New("signing: no active signing key configured")
)

// Key is one generation of the signing secret. RetiredAt is zero for the
// active generation; retired generations verify-only until the grace period
// past RetiredAt elapses.
type Key struct {
	ID        string
	Secret    []byte
	RetiredAt time.Time
}

// Keyring holds the active key plus any retired generations kept for
// verification of documents signed before a rotation.
type Keyring struct {
	active Key
	keys   map[string]Key
	grace  time.Duration
	now    func() time.Time
}

// NewKeyring builds a keyring from the active key and retired generations.
func NewKeyring(active Key, retired []Key, grace time.Duration) (*Keyring, error) {
	if active.ID == "" || len(active.Secret) == 0 {
		return nil, ErrNoActiveKey
	}
	kr := &Keyring{
		active: active,
		keys:   make(map[string]Key, len(retired)+1),
		grace:  grace,
		now:    time.Now,
	}
	kr.keys[active.ID] = active
	for _, k := range retired {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, fmt.Errorf("signing: retired key %q is incomplete", k.ID)
		}
		kr.keys[k.ID] = k
	}
	return kr, nil
}

// Token is the pair of URL-safe segments published in a verification link.
type Token struct {
	Data      string
	Signature string
}

func (kr *Keyring) mac(key Key, canonicalBytes []byte) []byte {
	m := hmac.New(sha256.New, key.Secret)
	m.Write([]byte(key.ID))
	m.Write([]byte{0})
	m.Write(canonicalBytes)
	return m.Sum(nil)
}

// Sign computes the proof signature over canonical bytes with the active key.
func (kr *Keyring) Sign(canonicalBytes []byte) (keyID string, sig []byte, err error) {
	return kr.active.ID, kr.mac(kr.active, canonicalBytes), nil
}

// EncodeToken packs canonical bytes and signature into URL segments. The key
// id rides inside the signature segment (length-prefixed) rather than as a
// third URL component.
func EncodeToken(canonicalBytes []byte, keyID string, sig []byte) (Token, error) {
	if len(keyID) == 0 || len(keyID) > 255 {
		return Token{}, fmt.Errorf("signing: key id length %d out of range", len(keyID))
	}
	packed := make([]byte, 0, 1+len(keyID)+len(sig))
	packed = append(packed, byte(len(keyID)))
	packed = append(packed, keyID...)
	packed = append(packed, sig...)
	return Token{
		Data:      base64.RawURLEncoding.EncodeToString(canonicalBytes),
		Signature: base64.RawURLEncoding.EncodeToString(packed),
	}, nil
}

// Verify checks a proof token and returns the canonical document it attests.
// The comparison is constant time. A token signed by a retired generation
// verifies until the grace period ends; after that it fails with ErrKeyExpired,
// as does a token naming a key this deployment has never held.
func (kr *Keyring) Verify(dataSegment, signatureSegment string) (canonical.Document, error) {
	canonicalBytes, err := base64.RawURLEncoding.DecodeString(dataSegment)
	if err != nil {
		return canonical.Document{}, ErrMalformedToken
	}
	packed, err := base64.RawURLEncoding.DecodeString(signatureSegment)
	if err != nil {
		return canonical.Document{}, ErrMalformedToken
	}
	if len(packed) < 1 {
		return canonical.Document{}, ErrMalformedToken
	}
	idLen := int(packed[0])
	if len(packed) < 1+idLen+sha256.Size {
		return canonical.Document{}, ErrMalformedToken
	}
	keyID := string(packed[1 : 1+idLen])
	sig := packed[1+idLen:]
	if len(sig) != sha256.Size {
		return canonical.Document{}, ErrMalformedToken
	}

	key, ok := kr.keys[keyID]
	if !ok {
		return canonical.Document{}, ErrKeyExpired
	}
	if !key.RetiredAt.IsZero() && kr.now().After(key.RetiredAt.Add(kr.grace)) {
		return canonical.Document{}, ErrKeyExpired
	}

	expected := kr.mac(key, canonicalBytes)
	if !hmac.Equal(expected, sig) {
		return canonical.Document{}, ErrInvalidSignature
	}

	doc, err := canonical.Unmarshal(canonicalBytes)
	if err != nil {
		return canonical.Document{}, ErrMalformedToken
	}
	return doc, nil
}
