package ledger

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxTransactionSize is the maximum size in bytes of a serialized signed
// transaction accepted by the network.
const MaxTransactionSize = 6144

const dataFieldOffset = 10

type Body struct {
	TransactionID TransactionID
	NodeAccount   AccountID
	MaxFee        uint64
	ValidDuration time.Duration
	Memo          string
	Data          TransactionData
}

func (b Body) validate() error {
	if b.Data == nil {
		return ErrMissingTransactionData
	}
	if _, ok := dataFactories[b.Data.Type()]; !ok {
		return ErrUnknownTransactionType
	}
	if b.TransactionID.Payer.IsZero() {
		return ErrMissingPayer
	}
	if b.TransactionID.ValidStart.IsZero() {
		return ErrMissingValidStart
	}
	return nil
}

func (b Body) marshal() []byte {
	e := &encoder{}
	e.putMessage(1, func(m *encoder) {
		m.putEntity(1, b.TransactionID.Payer)
		m.putTime(2, b.TransactionID.ValidStart)
	})
	e.putEntity(2, b.NodeAccount)
	e.putUint(3, b.MaxFee)
	e.putUint(4, uint64(b.ValidDuration/time.Second))
	e.putString(5, b.Memo)
	e.putMessage(
		protowire.Number(dataFieldOffset+int(b.Data.Type())), b.Data.marshal,
	)
	return e.buf
}

func decodeBody(buf []byte) (Body, error) {
	var body Body
	err := decodeFields(buf, func(f field) (err error) {
		switch {
		case f.num == 1:
			err = decodeFields(f.b, func(ff field) (err error) {
				switch ff.num {
				case 1:
					body.TransactionID.Payer, err = decodeEntity(ff.b)
				case 2:
					body.TransactionID.ValidStart, err = decodeTime(ff.b)
				}
				return
			})
		case f.num == 2:
			body.NodeAccount, err = decodeEntity(f.b)
		case f.num == 3:
			body.MaxFee = f.u
		case f.num == 4:
			body.ValidDuration = time.Duration(f.u) * time.Second
		case f.num == 5:
			body.Memo = string(f.b)
		case f.num > dataFieldOffset:
			newData, ok := dataFactories[TransactionType(int(f.num)-dataFieldOffset)]
			if !ok {
				return fmt.Errorf("%w: field %d", ErrUnknownTransactionType, f.num)
			}
			if body.Data != nil {
				return fmt.Errorf(
					"%w: more than one transaction data field", ErrMalformedTransaction,
				)
			}
			data := newData()
			if err := data.unmarshal(f.b); err != nil {
				return err
			}
			body.Data = data
		}
		return
	})
	if err != nil {
		return Body{}, err
	}
	if err := body.validate(); err != nil {
		return Body{}, err
	}
	return body, nil
}

type SignaturePair struct {
	PublicKey PublicKey
	Signature []byte
}

// Transaction is a body together with the signatures collected for it.
// Signatures are always over the serialized body.
type Transaction struct {
	body       Body
	bodyBytes  []byte
	signatures []SignaturePair
}

func NewTransaction(body Body) (*Transaction, error) {
	if err := body.validate(); err != nil {
		return nil, err
	}
	return &Transaction{body: body, bodyBytes: body.marshal()}, nil
}

// Decode parses a serialized signed transaction. Signatures are kept as they
// are, use SignerKeys to get only the valid ones.
func Decode(buf []byte) (*Transaction, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedTransaction)
	}
	tx := &Transaction{}
	if err := decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			tx.bodyBytes = f.bytes()
		case 2:
			pair := SignaturePair{}
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					key, err := decodeKey(ff.b)
					if err != nil {
						return err
					}
					pubkey, ok := key.(PublicKey)
					if !ok {
						return fmt.Errorf("%w: signature pair key", ErrInvalidKey)
					}
					pair.PublicKey = pubkey
				case 2:
					pair.Signature = ff.bytes()
				}
				return nil
			}); err != nil {
				return err
			}
			tx.signatures = append(tx.signatures, pair)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(tx.bodyBytes) == 0 {
		return nil, fmt.Errorf("%w: missing body", ErrMalformedTransaction)
	}

	body, err := decodeBody(tx.bodyBytes)
	if err != nil {
		return nil, err
	}
	tx.body = body
	return tx, nil
}

func (t *Transaction) Type() TransactionType {
	return t.body.Data.Type()
}

func (t *Transaction) Body() Body {
	return t.body
}

func (t *Transaction) Data() TransactionData {
	return t.body.Data
}

func (t *Transaction) ID() TransactionID {
	return t.body.TransactionID
}

func (t *Transaction) BodyBytes() []byte {
	return append([]byte{}, t.bodyBytes...)
}

// Sign adds the signature of the given key, replacing any previous one made
// with the same key.
func (t *Transaction) Sign(key PrivateKey) {
	pubkey := key.PublicKey()
	t.setSignature(SignaturePair{pubkey, key.Sign(t.bodyBytes)})
}

// AddSignature attaches an externally made signature after verifying it.
func (t *Transaction) AddSignature(pubkey PublicKey, sig []byte) error {
	if !pubkey.Verify(t.bodyBytes, sig) {
		return fmt.Errorf("%w for key %s", ErrInvalidSignature, pubkey)
	}
	t.setSignature(SignaturePair{pubkey, append([]byte{}, sig...)})
	return nil
}

func (t *Transaction) setSignature(pair SignaturePair) {
	for i, s := range t.signatures {
		if s.PublicKey.Equal(pair.PublicKey) {
			t.signatures[i] = pair
			return
		}
	}
	t.signatures = append(t.signatures, pair)
}

func (t *Transaction) Signatures() []SignaturePair {
	return append([]SignaturePair{}, t.signatures...)
}

// SignerKeys returns the keys of all attached signatures that verify against
// the body. Duplicates are returned once.
func (t *Transaction) SignerKeys() []PublicKey {
	keys := make([]PublicKey, 0, len(t.signatures))
	for _, s := range t.signatures {
		if !s.PublicKey.Verify(t.bodyBytes, s.Signature) {
			continue
		}
		if containsKey(keys, s.PublicKey) {
			continue
		}
		keys = append(keys, s.PublicKey)
	}
	return keys
}

// WithSignatures returns a copy of the transaction that carries only the
// signatures made by the given keys, in their original order.
func (t *Transaction) WithSignatures(keys []PublicKey) *Transaction {
	signatures := make([]SignaturePair, 0, len(keys))
	for _, s := range t.signatures {
		if containsKey(keys, s.PublicKey) {
			signatures = append(signatures, s)
		}
	}
	return &Transaction{
		body:       t.body,
		bodyBytes:  t.bodyBytes,
		signatures: signatures,
	}
}

func (t *Transaction) Bytes() []byte {
	e := &encoder{}
	e.putBytes(1, t.bodyBytes)
	for _, s := range t.signatures {
		s := s
		e.putMessage(2, func(m *encoder) {
			m.putKey(1, s.PublicKey)
			m.putBytes(2, s.Signature)
		})
	}
	return e.buf
}

func (t *Transaction) Size() int {
	return len(t.Bytes())
}

// Hash identifies the body regardless of the attached signatures.
func (t *Transaction) Hash() chainhash.Hash {
	return chainhash.HashH(t.bodyBytes)
}

func containsKey(keys []PublicKey, key PublicKey) bool {
	for _, k := range keys {
		if k.Equal(key) {
			return true
		}
	}
	return false
}
