package ledger

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// The wire format is plain protobuf encoding, written and read field by
// field with protowire. Zero values are omitted, like proto3 does.

type encoder struct {
	buf []byte
}

func (e *encoder) putUint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) putInt(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(v))
}

func (e *encoder) putBool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
}

func (e *encoder) putBytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *encoder) putString(num protowire.Number, v string) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// putMessage always writes the field, even if the nested message is empty.
func (e *encoder) putMessage(num protowire.Number, fn func(m *encoder)) {
	m := &encoder{}
	fn(m)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, m.buf)
}

func (e *encoder) putEntity(num protowire.Number, id EntityID) {
	if id.IsZero() {
		return
	}
	e.putMessage(num, func(m *encoder) {
		m.putUint(1, id.Shard)
		m.putUint(2, id.Realm)
		m.putUint(3, id.Num)
	})
}

func (e *encoder) putTime(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	e.putMessage(num, func(m *encoder) {
		m.putInt(1, t.Unix())
		m.putUint(2, uint64(t.Nanosecond()))
	})
}

func (e *encoder) putKey(num protowire.Number, key Key) {
	if key == nil {
		return
	}
	e.putMessage(num, func(m *encoder) { marshalKey(m, key) })
}

func marshalKey(e *encoder, key Key) {
	switch k := key.(type) {
	case PublicKey:
		if k.Type == KeyTypeECDSASecp256k1 {
			e.putBytes(2, k.Bytes)
			return
		}
		e.putBytes(1, k.Bytes)
	case KeyList:
		if k.Threshold > 0 {
			e.putMessage(4, func(m *encoder) {
				m.putUint(1, uint64(k.Threshold))
				m.putMessage(2, func(l *encoder) { marshalKeys(l, k.Keys) })
			})
			return
		}
		e.putMessage(3, func(m *encoder) { marshalKeys(m, k.Keys) })
	}
}

func marshalKeys(e *encoder, keys []Key) {
	for _, k := range keys {
		e.putKey(1, k)
	}
}

type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) int64() int64 {
	return protowire.DecodeZigZag(f.u)
}

func (f field) bool() bool {
	return protowire.DecodeBool(f.u)
}

func (f field) bytes() []byte {
	return append([]byte{}, f.b...)
}

func decodeFields(buf []byte, fn func(f field) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformedTransaction, protowire.ParseError(n))
		}
		buf = buf[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(buf)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(buf)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformedTransaction, protowire.ParseError(n))
		}
		buf = buf[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeEntity(buf []byte) (EntityID, error) {
	var id EntityID
	err := decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			id.Shard = f.u
		case 2:
			id.Realm = f.u
		case 3:
			id.Num = f.u
		}
		return nil
	})
	return id, err
}

func decodeTime(buf []byte) (time.Time, error) {
	var secs int64
	var nanos uint64
	err := decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			secs = f.int64()
		case 2:
			nanos = f.u
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, int64(nanos)).UTC(), nil
}

func decodeKey(buf []byte) (Key, error) {
	var key Key
	err := decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			key = PublicKey{KeyTypeEd25519, f.bytes()}
		case 2:
			key = PublicKey{KeyTypeECDSASecp256k1, f.bytes()}
		case 3:
			keys, err := decodeKeys(f.b)
			if err != nil {
				return err
			}
			key = KeyList{Keys: keys}
		case 4:
			list := KeyList{}
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					list.Threshold = int(ff.u)
				case 2:
					keys, err := decodeKeys(ff.b)
					if err != nil {
						return err
					}
					list.Keys = keys
				}
				return nil
			}); err != nil {
				return err
			}
			key = list
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return key, nil
}

func decodeKeys(buf []byte) ([]Key, error) {
	keys := make([]Key, 0)
	err := decodeFields(buf, func(f field) error {
		if f.num != 1 {
			return nil
		}
		k, err := decodeKey(f.b)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

// MarshalKey returns the wire encoding of the given key.
func MarshalKey(key Key) []byte {
	e := &encoder{}
	marshalKey(e, key)
	return e.buf
}

// UnmarshalKey parses a key previously encoded with MarshalKey.
func UnmarshalKey(buf []byte) (Key, error) {
	return decodeKey(buf)
}

func (d *AccountCreate) marshal(e *encoder) {
	e.putKey(1, d.Key)
	e.putUint(2, d.InitialBalance)
	e.putBool(3, d.ReceiverSignatureRequired)
	e.putString(4, d.Memo)
}

func (d *AccountCreate) unmarshal(buf []byte) (err error) {
	return decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			d.Key, err = decodeKey(f.b)
		case 2:
			d.InitialBalance = f.u
		case 3:
			d.ReceiverSignatureRequired = f.bool()
		case 4:
			d.Memo = string(f.b)
		}
		return err
	})
}

func (d *AccountUpdate) marshal(e *encoder) {
	e.putEntity(1, d.Account)
	e.putKey(2, d.Key)
	e.putBool(3, d.ReceiverSignatureRequired)
	e.putString(4, d.Memo)
}

func (d *AccountUpdate) unmarshal(buf []byte) (err error) {
	return decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			d.Account, err = decodeEntity(f.b)
		case 2:
			d.Key, err = decodeKey(f.b)
		case 3:
			d.ReceiverSignatureRequired = f.bool()
		case 4:
			d.Memo = string(f.b)
		}
		return err
	})
}

func (d *AccountDelete) marshal(e *encoder) {
	e.putEntity(1, d.Account)
	e.putEntity(2, d.TransferAccount)
}

func (d *AccountDelete) unmarshal(buf []byte) (err error) {
	return decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			d.Account, err = decodeEntity(f.b)
		case 2:
			d.TransferAccount, err = decodeEntity(f.b)
		}
		return err
	})
}

func (d *AccountAllowanceApprove) marshal(e *encoder) {
	for _, a := range d.HbarAllowances {
		a := a
		e.putMessage(1, func(m *encoder) {
			m.putEntity(1, a.Owner)
			m.putEntity(2, a.Spender)
			m.putInt(3, a.Amount)
		})
	}
	for _, a := range d.TokenAllowances {
		a := a
		e.putMessage(2, func(m *encoder) {
			m.putEntity(1, a.Token)
			m.putEntity(2, a.Owner)
			m.putEntity(3, a.Spender)
			m.putInt(4, a.Amount)
		})
	}
	for _, a := range d.NftAllowances {
		a := a
		e.putMessage(3, func(m *encoder) {
			m.putEntity(1, a.Token)
			m.putEntity(2, a.Owner)
			m.putEntity(3, a.Spender)
			for _, s := range a.Serials {
				m.buf = protowire.AppendTag(m.buf, 4, protowire.VarintType)
				m.buf = protowire.AppendVarint(m.buf, protowire.EncodeZigZag(s))
			}
			m.putBool(5, a.ApprovedForAll)
		})
	}
}

func (d *AccountAllowanceApprove) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			var a HbarAllowance
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					a.Owner, err = decodeEntity(ff.b)
				case 2:
					a.Spender, err = decodeEntity(ff.b)
				case 3:
					a.Amount = ff.int64()
				}
				return err
			}); err != nil {
				return err
			}
			d.HbarAllowances = append(d.HbarAllowances, a)
		case 2:
			var a TokenAllowance
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					a.Token, err = decodeEntity(ff.b)
				case 2:
					a.Owner, err = decodeEntity(ff.b)
				case 3:
					a.Spender, err = decodeEntity(ff.b)
				case 4:
					a.Amount = ff.int64()
				}
				return err
			}); err != nil {
				return err
			}
			d.TokenAllowances = append(d.TokenAllowances, a)
		case 3:
			var a NftAllowance
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					a.Token, err = decodeEntity(ff.b)
				case 2:
					a.Owner, err = decodeEntity(ff.b)
				case 3:
					a.Spender, err = decodeEntity(ff.b)
				case 4:
					a.Serials = append(a.Serials, ff.int64())
				case 5:
					a.ApprovedForAll = ff.bool()
				}
				return err
			}); err != nil {
				return err
			}
			d.NftAllowances = append(d.NftAllowances, a)
		}
		return nil
	})
}

func (d *Transfer) marshal(e *encoder) {
	for _, t := range d.HbarTransfers {
		t := t
		e.putMessage(1, func(m *encoder) {
			m.putEntity(1, t.Account)
			m.putInt(2, t.Amount)
			m.putBool(3, t.IsApproval)
		})
	}
	for _, t := range d.TokenTransfers {
		t := t
		e.putMessage(2, func(m *encoder) {
			m.putEntity(1, t.Token)
			m.putEntity(2, t.Account)
			m.putInt(3, t.Amount)
			m.putBool(4, t.IsApproval)
		})
	}
	for _, t := range d.NftTransfers {
		t := t
		e.putMessage(3, func(m *encoder) {
			m.putEntity(1, t.Token)
			m.putEntity(2, t.Sender)
			m.putEntity(3, t.Receiver)
			m.putInt(4, t.Serial)
			m.putBool(5, t.IsApproval)
		})
	}
}

func (d *Transfer) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) error {
		switch f.num {
		case 1:
			var t HbarTransfer
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					t.Account, err = decodeEntity(ff.b)
				case 2:
					t.Amount = ff.int64()
				case 3:
					t.IsApproval = ff.bool()
				}
				return err
			}); err != nil {
				return err
			}
			d.HbarTransfers = append(d.HbarTransfers, t)
		case 2:
			var t TokenTransfer
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					t.Token, err = decodeEntity(ff.b)
				case 2:
					t.Account, err = decodeEntity(ff.b)
				case 3:
					t.Amount = ff.int64()
				case 4:
					t.IsApproval = ff.bool()
				}
				return err
			}); err != nil {
				return err
			}
			d.TokenTransfers = append(d.TokenTransfers, t)
		case 3:
			var t NftTransfer
			var err error
			if err := decodeFields(f.b, func(ff field) error {
				switch ff.num {
				case 1:
					t.Token, err = decodeEntity(ff.b)
				case 2:
					t.Sender, err = decodeEntity(ff.b)
				case 3:
					t.Receiver, err = decodeEntity(ff.b)
				case 4:
					t.Serial = ff.int64()
				case 5:
					t.IsApproval = ff.bool()
				}
				return err
			}); err != nil {
				return err
			}
			d.NftTransfers = append(d.NftTransfers, t)
		}
		return nil
	})
}

func (d *FileCreate) marshal(e *encoder) {
	e.putMessage(1, func(m *encoder) { marshalKeys(m, d.Keys.Keys) })
	e.putBytes(2, d.Contents)
	e.putString(3, d.Memo)
	e.putTime(4, d.ExpirationTime)
}

func (d *FileCreate) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.Keys.Keys, err = decodeKeys(f.b)
		case 2:
			d.Contents = f.bytes()
		case 3:
			d.Memo = string(f.b)
		case 4:
			d.ExpirationTime, err = decodeTime(f.b)
		}
		return
	})
}

func (d *FileUpdate) marshal(e *encoder) {
	e.putEntity(1, d.File)
	if d.Keys != nil {
		e.putMessage(2, func(m *encoder) { marshalKeys(m, d.Keys.Keys) })
	}
	e.putBytes(3, d.Contents)
}

func (d *FileUpdate) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.File, err = decodeEntity(f.b)
		case 2:
			var keys []Key
			keys, err = decodeKeys(f.b)
			d.Keys = &KeyList{Keys: keys}
		case 3:
			d.Contents = f.bytes()
		}
		return
	})
}

func (d *FileAppend) marshal(e *encoder) {
	e.putEntity(1, d.File)
	e.putBytes(2, d.Contents)
}

func (d *FileAppend) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.File, err = decodeEntity(f.b)
		case 2:
			d.Contents = f.bytes()
		}
		return
	})
}

func (d *NodeCreate) marshal(e *encoder) {
	e.putEntity(1, d.Account)
	e.putString(2, d.Description)
	e.putKey(3, d.AdminKey)
}

func (d *NodeCreate) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.Account, err = decodeEntity(f.b)
		case 2:
			d.Description = string(f.b)
		case 3:
			d.AdminKey, err = decodeKey(f.b)
		}
		return
	})
}

func (d *NodeUpdate) marshal(e *encoder) {
	e.putUint(1, d.NodeID)
	e.putString(2, d.Description)
	e.putKey(3, d.AdminKey)
}

func (d *NodeUpdate) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.NodeID = f.u
		case 2:
			d.Description = string(f.b)
		case 3:
			d.AdminKey, err = decodeKey(f.b)
		}
		return
	})
}

func (d *NodeDelete) marshal(e *encoder) {
	e.putUint(1, d.NodeID)
}

func (d *NodeDelete) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) error {
		if f.num == 1 {
			d.NodeID = f.u
		}
		return nil
	})
}

func (d *Freeze) marshal(e *encoder) {
	e.putTime(1, d.StartTime)
	e.putUint(2, uint64(d.FreezeType))
	e.putEntity(3, d.File)
	e.putBytes(4, d.FileHash)
}

func (d *Freeze) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.StartTime, err = decodeTime(f.b)
		case 2:
			d.FreezeType = FreezeType(f.u)
		case 3:
			d.File, err = decodeEntity(f.b)
		case 4:
			d.FileHash = f.bytes()
		}
		return
	})
}

func (d *SystemDelete) marshal(e *encoder) {
	e.putEntity(1, d.File)
	e.putTime(2, d.ExpirationTime)
}

func (d *SystemDelete) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		switch f.num {
		case 1:
			d.File, err = decodeEntity(f.b)
		case 2:
			d.ExpirationTime, err = decodeTime(f.b)
		}
		return
	})
}

func (d *SystemUndelete) marshal(e *encoder) {
	e.putEntity(1, d.File)
}

func (d *SystemUndelete) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) (err error) {
		if f.num == 1 {
			d.File, err = decodeEntity(f.b)
		}
		return
	})
}

func (d *TokenAssociate) marshal(e *encoder) {
	e.putEntity(1, d.Account)
	for _, t := range d.Tokens {
		e.putEntity(2, t)
	}
}

func (d *TokenAssociate) unmarshal(buf []byte) error {
	return decodeFields(buf, func(f field) error {
		id, err := decodeEntity(f.b)
		if err != nil {
			return err
		}
		switch f.num {
		case 1:
			d.Account = id
		case 2:
			d.Tokens = append(d.Tokens, id)
		}
		return nil
	})
}
