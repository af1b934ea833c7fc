package voucher

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Schema is the ordered struct layout of one voucher type. Field order and
// Solidity types must match the verifying contract's struct declaration; a
// mismatch still signs, but the contract recovers a different address.
type Schema struct {
	PrimaryType string
	Fields      []apitypes.Type
}

var domainSchema = Schema{
	PrimaryType: "EIP712Domain",
	Fields: []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
}

// EncodeType renders the EIP-712 type string, e.g.
// "RoleVoucher(address redeemer,uint256 validUntil,uint256 roleId)".
func (s Schema) EncodeType() string {
	var b strings.Builder
	b.WriteString(s.PrimaryType)
	b.WriteByte('(')
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Type)
		b.WriteByte(' ')
		b.WriteString(f.Name)
	}
	b.WriteByte(')')
	return b.String()
}

// TypeHash is keccak256(EncodeType()).
func (s Schema) TypeHash() common.Hash {
	return crypto.Keccak256Hash([]byte(s.EncodeType()))
}

func (s Schema) index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) clone() Schema {
	fields := make([]apitypes.Type, len(s.Fields))
	copy(fields, s.Fields)
	return Schema{PrimaryType: s.PrimaryType, Fields: fields}
}

// encode coerces values (in schema order) to their declared types and returns
// the 32-byte words that follow the type hash in hashStruct, together with the
// normalised values.
func (s Schema) encode(values []any) ([]common.Hash, []any, error) {
	if len(values) != len(s.Fields) {
		return nil, nil, fmt.Errorf("%w: %s takes %d values, got %d",
			ErrSchemaMismatch, s.PrimaryType, len(s.Fields), len(values))
	}
	words := make([]common.Hash, len(values))
	norm := make([]any, len(values))
	for i, f := range s.Fields {
		w, n, err := encodeField(f.Type, values[i])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s.%s: %v", ErrSchemaMismatch, s.PrimaryType, f.Name, err)
		}
		words[i], norm[i] = w, n
	}
	return words, norm, nil
}

// Order maps a field object onto schema order. Missing and unknown keys
// are both rejected: a voucher conforms to exactly one schema.
func (s Schema) Order(fields map[string]any) ([]any, error) {
	values := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		v, ok := fields[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing field %q", ErrSchemaMismatch, s.PrimaryType, f.Name)
		}
		values[i] = v
	}
	for name := range fields {
		if s.index(name) < 0 {
			return nil, fmt.Errorf("%w: %s: unknown field %q", ErrSchemaMismatch, s.PrimaryType, name)
		}
	}
	return values, nil
}

// hashStruct computes keccak256(typeHash || enc(v1) || ... || enc(vn)).
func (s Schema) hashStruct(words []common.Hash) common.Hash {
	buf := make([]byte, 0, 32*(len(words)+1))
	th := s.TypeHash()
	buf = append(buf, th[:]...)
	for _, w := range words {
		buf = append(buf, w[:]...)
	}
	return crypto.Keccak256Hash(buf)
}
