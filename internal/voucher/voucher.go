package voucher

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Voucher is a signed authorization for one on-chain action. It is immutable:
// accessors return copies. On the wire it is the field object in schema
// order with a "signature" property appended.
type Voucher struct {
	family       string
	schema       Schema
	accountField string
	values       []any
	digest       common.Hash
	signature    []byte
}

// Family returns the id of the family the voucher was built for.
func (v *Voucher) Family() string { return v.family }

// Digest returns the typed-data digest the signature covers.
func (v *Voucher) Digest() common.Hash { return v.digest }

// Signature returns the 65-byte r||s||v signature, v in {27, 28}.
func (v *Voucher) Signature() []byte { return common.CopyBytes(v.signature) }

// Get returns the normalised value of a field: *big.Int for integers,
// common.Address, bool, string or []byte.
func (v *Voucher) Get(name string) (any, bool) {
	i := v.schema.index(name)
	if i < 0 {
		return nil, false
	}
	return copyValue(v.values[i]), true
}

// Values returns the normalised values in schema order.
func (v *Voucher) Values() []any {
	out := make([]any, len(v.values))
	for i, x := range v.values {
		out[i] = copyValue(x)
	}
	return out
}

// Fields returns the field mapping merged with the signature, as sent on the wire.
func (v *Voucher) Fields() map[string]any {
	m := make(map[string]any, len(v.values)+1)
	for i, f := range v.schema.Fields {
		m[f.Name] = jsonValue(v.values[i])
	}
	m["signature"] = hexutil.Encode(v.signature)
	return m
}

// Account returns the address of the party the voucher is issued to.
func (v *Voucher) Account() common.Address {
	x, ok := v.Get(v.accountField)
	if !ok {
		return common.Address{}
	}
	a, _ := x.(common.Address)
	return a
}

func (v *Voucher) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range v.schema.Fields {
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(jsonValue(v.values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte(',')
	}
	buf.WriteString(`"signature":`)
	sig, _ := json.Marshal(hexutil.Encode(v.signature))
	buf.Write(sig)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseVoucher decodes a wire voucher for family f under domain d. The
// digest is recomputed from the decoded fields; the signature is not checked.
func ParseVoucher(f Family, d Domain, raw []byte) (*Voucher, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode voucher: %w", err)
	}
	rawSig, ok := m["signature"].(string)
	if !ok {
		return nil, fmt.Errorf("decode voucher: missing signature")
	}
	delete(m, "signature")
	sig, err := hexutil.Decode(rawSig)
	if err != nil {
		return nil, fmt.Errorf("decode voucher signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("decode voucher: signature is %d bytes, want 65", len(sig))
	}

	values, err := f.Schema.Order(m)
	if err != nil {
		return nil, err
	}
	words, norm, err := f.Schema.encode(values)
	if err != nil {
		return nil, err
	}
	return &Voucher{
		family:       f.ID,
		schema:       f.Schema.clone(),
		accountField: f.AccountField,
		values:       norm,
		digest:       f.digest(d, words),
		signature:    sig,
	}, nil
}
