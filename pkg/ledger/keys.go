package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

type KeyType uint8

const (
	KeyTypeEd25519 KeyType = iota + 1
	KeyTypeECDSASecp256k1
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeEd25519:
		return "ED25519"
	case KeyTypeECDSASecp256k1:
		return "ECDSA_SECP256K1"
	default:
		return "UNKNOWN"
	}
}

// Key is either a single PublicKey or a KeyList, a threshold structure of
// nested keys.
type Key interface {
	isKey()
}

// PublicKey is a leaf key. Ed25519 keys are 32 bytes, secp256k1 keys are 33
// bytes in compressed form.
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

func (PublicKey) isKey() {}

// ParsePublicKey parses a key in the form <type>:<hex>, where type is one of
// ed25519 or ecdsa. A bare 64-char hex string is read as ed25519.
func ParsePublicKey(str string) (PublicKey, error) {
	keyType := KeyTypeEd25519
	str = strings.TrimSpace(str)
	if i := strings.Index(str, ":"); i >= 0 {
		switch strings.ToLower(str[:i]) {
		case "ed25519":
		case "ecdsa", "secp256k1":
			keyType = KeyTypeECDSASecp256k1
		default:
			return PublicKey{}, fmt.Errorf("%w: %s", ErrUnknownKeyType, str[:i])
		}
		str = str[i+1:]
	}
	buf, err := hex.DecodeString(str)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidKey, err)
	}
	key := PublicKey{keyType, buf}
	if err := key.validate(); err != nil {
		return PublicKey{}, err
	}
	return key, nil
}

func (k PublicKey) validate() error {
	switch k.Type {
	case KeyTypeEd25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return fmt.Errorf(
				"%w: ed25519 key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize,
			)
		}
	case KeyTypeECDSASecp256k1:
		if _, err := btcec.ParsePubKey(k.Bytes); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidKey, err)
		}
	default:
		return ErrUnknownKeyType
	}
	return nil
}

func (k PublicKey) String() string {
	prefix := "ed25519"
	if k.Type == KeyTypeECDSASecp256k1 {
		prefix = "ecdsa"
	}
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(k.Bytes))
}

func (k PublicKey) Equal(other PublicKey) bool {
	return k.Type == other.Type && bytes.Equal(k.Bytes, other.Bytes)
}

// Verify returns whether sig is a valid signature of msg for this key.
func (k PublicKey) Verify(msg, sig []byte) bool {
	switch k.Type {
	case KeyTypeEd25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.Bytes), msg, sig)
	case KeyTypeECDSASecp256k1:
		pubkey, err := btcec.ParsePubKey(k.Bytes)
		if err != nil {
			return false
		}
		signature, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		return signature.Verify(keccak256(msg), pubkey)
	default:
		return false
	}
}

// SignatureSize is the expected size in bytes of a signature made with this
// key. DER encoded ecdsa signatures have variable length, the maximum is
// returned.
func (k PublicKey) SignatureSize() int {
	if k.Type == KeyTypeECDSASecp256k1 {
		return 72
	}
	return ed25519.SignatureSize
}

// KeyList requires Threshold of its Keys to be satisfied. A zero Threshold
// means all of them.
type KeyList struct {
	Threshold int
	Keys      []Key
}

func (KeyList) isKey() {}

// NewKeyList returns a list that requires all the given keys.
func NewKeyList(keys ...Key) KeyList {
	return KeyList{Keys: keys}
}

// NewThresholdKey returns a list that requires threshold of the given keys.
func NewThresholdKey(threshold int, keys ...Key) KeyList {
	return KeyList{Threshold: threshold, Keys: keys}
}

// RequiredCount returns the number of keys that must be satisfied. It
// exceeds len(Keys) for a malformed list.
func (l KeyList) RequiredCount() int {
	if l.Threshold <= 0 {
		return len(l.Keys)
	}
	return l.Threshold
}

// IsValid returns whether the list can ever be satisfied: it must not be
// empty and its threshold must not exceed the number of keys.
func (l KeyList) IsValid() bool {
	return len(l.Keys) > 0 && l.Threshold <= len(l.Keys)
}

// PublicKeys returns all leaf keys of the given key, depth first.
func PublicKeys(key Key) []PublicKey {
	switch k := key.(type) {
	case PublicKey:
		return []PublicKey{k}
	case KeyList:
		keys := make([]PublicKey, 0, len(k.Keys))
		for _, kk := range k.Keys {
			keys = append(keys, PublicKeys(kk)...)
		}
		return keys
	default:
		return nil
	}
}

// PrivateKey signs transaction bodies.
type PrivateKey struct {
	keyType KeyType
	ed      ed25519.PrivateKey
	ec      *btcec.PrivateKey
}

// GeneratePrivateKey returns a new random key of the given type.
func GeneratePrivateKey(keyType KeyType) (PrivateKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		_, prvkey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return PrivateKey{}, err
		}
		return PrivateKey{keyType: keyType, ed: prvkey}, nil
	case KeyTypeECDSASecp256k1:
		prvkey, err := btcec.NewPrivateKey()
		if err != nil {
			return PrivateKey{}, err
		}
		return PrivateKey{keyType: keyType, ec: prvkey}, nil
	default:
		return PrivateKey{}, ErrUnknownKeyType
	}
}

func (k PrivateKey) PublicKey() PublicKey {
	if k.keyType == KeyTypeECDSASecp256k1 {
		return PublicKey{k.keyType, k.ec.PubKey().SerializeCompressed()}
	}
	pubkey := k.ed.Public().(ed25519.PublicKey)
	return PublicKey{k.keyType, []byte(pubkey)}
}

func (k PrivateKey) Sign(msg []byte) []byte {
	if k.keyType == KeyTypeECDSASecp256k1 {
		return ecdsa.Sign(k.ec, keccak256(msg)).Serialize()
	}
	return ed25519.Sign(k.ed, msg)
}

func keccak256(msg []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(msg)
	return h.Sum(nil)
}
