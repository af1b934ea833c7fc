package voucher

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// encodeField encodes one value per EIP-712 encodeData rules:
// string/bytes are hashed, everything else fills a single 32-byte word.
// No range checks are applied beyond what fits in 256 bits; the verifying
// contract is the authority on acceptable values.
func encodeField(typ string, v any) (word common.Hash, norm any, err error) {
	switch {
	case typ == "string":
		s, ok := v.(string)
		if !ok {
			return word, nil, fmt.Errorf("cannot use %T as string", v)
		}
		return crypto.Keccak256Hash([]byte(s)), s, nil

	case typ == "bytes":
		b, err := toBytes(v)
		if err != nil {
			return word, nil, err
		}
		return crypto.Keccak256Hash(b), b, nil

	case typ == "bool":
		b, err := toBool(v)
		if err != nil {
			return word, nil, err
		}
		if b {
			word[31] = 1
		}
		return word, b, nil

	case typ == "address":
		a, err := toAddress(v)
		if err != nil {
			return word, nil, err
		}
		copy(word[12:], a.Bytes())
		return word, a, nil

	case strings.HasPrefix(typ, "bytes"):
		n, err := typeSize(typ[len("bytes"):], 1, 32, 1)
		if err != nil {
			return word, nil, fmt.Errorf("unsupported type %q", typ)
		}
		b, err := toBytes(v)
		if err != nil {
			return word, nil, err
		}
		if len(b) != n {
			return word, nil, fmt.Errorf("%s needs %d bytes, got %d", typ, n, len(b))
		}
		copy(word[:], b) // bytesN is right-padded
		return word, b, nil

	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		digits := strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int")
		if _, err := typeSize(digits, 8, 256, 8); err != nil {
			return word, nil, fmt.Errorf("unsupported type %q", typ)
		}
		i, err := toBigInt(v)
		if err != nil {
			return word, nil, err
		}
		if i.BitLen() > 256 {
			return word, nil, fmt.Errorf("value %s does not fit in 256 bits", i)
		}
		// Negative values are passed through as 256-bit two's complement.
		copy(word[:], math.U256Bytes(new(big.Int).Set(i)))
		return word, i, nil
	}
	return word, nil, fmt.Errorf("unsupported type %q", typ)
}

// typeSize parses the size suffix of a sized type; an empty suffix means max.
func typeSize(suffix string, lo, hi, step int) (int, error) {
	if suffix == "" {
		return hi, nil
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < lo || n > hi || n%step != 0 {
		return 0, fmt.Errorf("bad size %q", suffix)
	}
	return n, nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case *hexutil.Big:
		if x == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(x.ToInt()), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int8:
		return big.NewInt(int64(x)), nil
	case int16:
		return big.NewInt(int64(x)), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		if x != x {
			return nil, fmt.Errorf("NaN is not an integer")
		}
		f := new(big.Float).SetFloat64(x)
		if !f.IsInt() {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		i, _ := f.Int(nil)
		return i, nil
	case json.Number:
		return parseInt(string(x))
	case string:
		return parseInt(x)
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

// parseInt accepts decimal (optionally negative) and 0x-prefixed hex.
func parseInt(s string) (*big.Int, error) {
	i, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok || strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return i, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("%q is not a bool", x)
		}
		return b, nil
	}
	return false, fmt.Errorf("cannot use %T as bool", v)
}

// toAddress accepts any 20-byte hex string regardless of case. EIP-55
// checksums are not enforced.
func toAddress(v any) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *common.Address:
		if x == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *x, nil
	case string:
		if !common.IsHexAddress(x) {
			return common.Address{}, fmt.Errorf("%q is not a 20-byte hex address", x)
		}
		return common.HexToAddress(x), nil
	}
	return common.Address{}, fmt.Errorf("cannot use %T as address", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return common.CopyBytes(x), nil
	case hexutil.Bytes:
		return common.CopyBytes(x), nil
	case common.Hash:
		return x.Bytes(), nil
	case [32]byte:
		return common.CopyBytes(x[:]), nil
	case string:
		b, err := hexutil.Decode(x)
		if err != nil {
			return nil, fmt.Errorf("%q: %v", x, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}

// jsonValue renders a normalised value for the wire: integers as decimal
// strings, addresses checksummed, bytes 0x-hex.
func jsonValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	}
	return v
}

func copyValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return new(big.Int).Set(x)
	case []byte:
		return common.CopyBytes(x)
	}
	return v
}
