// Package ledger records issued vouchers in Redis so the service can answer
// "what has this account been issued" and re-serve a voucher by digest.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/udao-org/udao-voucher/internal/voucher"
)

const (
	// DigestKeyFmt holds one voucher JSON per typed-data digest.
	DigestKeyFmt = "voucher:digest:%s"
	// IssuedKeyFmt is the per (family, account) issuance list, oldest first.
	IssuedKeyFmt = "voucher:issued:%s:%s"
)

type Ledger struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a ledger. A zero ttl keeps entries forever.
func New(rdb *redis.Client, ttl time.Duration) *Ledger {
	return &Ledger{rdb: rdb, ttl: ttl}
}

func digestKey(d common.Hash) string {
	return fmt.Sprintf(DigestKeyFmt, d.Hex())
}

func issuedKey(family string, account common.Address) string {
	return fmt.Sprintf(IssuedKeyFmt, family, strings.ToLower(account.Hex()))
}

// recordScript claims the digest key and appends to the issuance list in one
// step, so a voucher is either fully recorded or not at all.
//
// KEYS[1] digest key, KEYS[2] issued list; ARGV[1] voucher JSON, ARGV[2] ttl ms (0 = none).
var recordScript = redis.NewScript(`
local ttl = tonumber(ARGV[2])
local ok
if ttl > 0 then
  ok = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ttl)
else
  ok = redis.call("SET", KEYS[1], ARGV[1], "NX")
end
if not ok then
  return 0
end
redis.call("RPUSH", KEYS[2], ARGV[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`)

// Record stores v and appends it to its account's issuance list. Signing is
// deterministic, so re-issuing identical fields yields the same digest; such
// repeats are not appended again and Record reports false.
func (l *Ledger) Record(ctx context.Context, v *voucher.Voucher) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal voucher: %w", err)
	}
	keys := []string{digestKey(v.Digest()), issuedKey(v.Family(), v.Account())}
	n, err := recordScript.Run(ctx, l.rdb, keys, string(raw), l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("record voucher: %w", err)
	}
	return n == 1, nil
}

// List returns up to limit vouchers of family issued to account, oldest
// first, skipping the first offset. A limit of zero or less returns the rest.
func (l *Ledger) List(ctx context.Context, family string, account common.Address, offset, limit int64) ([]json.RawMessage, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = offset + limit - 1
	}
	vals, err := l.rdb.LRange(ctx, issuedKey(family, account), offset, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	out := make([]json.RawMessage, len(vals))
	for i, s := range vals {
		out[i] = json.RawMessage(s)
	}
	return out, nil
}

// Count returns how many vouchers of family were issued to account.
func (l *Ledger) Count(ctx context.Context, family string, account common.Address) (int64, error) {
	n, err := l.rdb.LLen(ctx, issuedKey(family, account)).Result()
	if err != nil {
		return 0, fmt.Errorf("count vouchers: %w", err)
	}
	return n, nil
}

// Lookup returns the voucher recorded under digest, or nil if there is none.
func (l *Ledger) Lookup(ctx context.Context, digest common.Hash) (json.RawMessage, error) {
	s, err := l.rdb.Get(ctx, digestKey(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup voucher: %w", err)
	}
	return json.RawMessage(s), nil
}
