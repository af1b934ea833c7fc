package api

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// accountOf reads the account field from a decoded field object. It reports
// false when the field is absent or not an address; signing then rejects the
// object with a schema mismatch.
func accountOf(fields map[string]any, name string) (common.Address, bool) {
	s, ok := fields[name].(string)
	if !ok || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// mayIssue reports whether wallet may obtain a voucher of family addressed
// to account.
func (h *Handler) mayIssue(family string, wallet, account common.Address) bool {
	if h.admins[wallet] {
		return true
	}
	return h.selfService[family] && wallet == account
}

// mayRead reports whether wallet may see vouchers issued to account: its
// own, or anyone's when wallet is an admin.
func (h *Handler) mayRead(wallet, account common.Address) bool {
	return wallet == account || h.admins[wallet]
}

// queryInt parses an optional non-empty integer query parameter.
func queryInt(c *gin.Context, name string) (int64, error) {
	q := c.Query(name)
	if q == "" {
		return 0, nil
	}
	return strconv.ParseInt(q, 10, 64)
}

func hexDigest(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("digest is %d bytes", len(b))
	}
	return common.BytesToHash(b), nil
}
