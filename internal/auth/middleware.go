package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Context keys set by Middleware.
const (
	WalletKey  = "wallet_address"
	RequestKey = "signed_request"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
// Action and ResourceID scope the signature to one operation on one resource.
type SignedRequest struct {
	Action     string          `json:"action"`
	ExpiresAt  int64           `json:"expires_at"`
	Nonce      string          `json:"nonce"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ResourceID string          `json:"resource_id"`
}

const maxFutureWindow = 5 * time.Minute

// NonceStore claims a request nonce exactly once within ttl.
type NonceStore interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

const nonceKeyPrefix = "auth:nonce:"

// RedisNonces claims nonces with SET NX.
type RedisNonces struct {
	rdb *redis.Client
}

func NewRedisNonces(rdb *redis.Client) *RedisNonces {
	return &RedisNonces{rdb: rdb}
}

func (n *RedisNonces) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return n.rdb.SetNX(ctx, nonceKeyPrefix+nonce, 1, ttl).Result()
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// Middleware returns a Gin handler that validates EIP-191 wallet signatures.
// On success the checksummed wallet is stored under WalletKey and the decoded
// request under RequestKey.
func Middleware(nonces NonceStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletHex := c.GetHeader(HeaderWallet)
		signedMsgB64 := c.GetHeader(HeaderMessage)
		sigHex := c.GetHeader(HeaderSignature)

		if walletHex == "" || signedMsgB64 == "" || sigHex == "" {
			abort(c, "missing auth headers")
			return
		}
		if !common.IsHexAddress(walletHex) {
			abort(c, "invalid wallet address")
			return
		}
		wallet := common.HexToAddress(walletHex)

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			abort(c, "invalid X-Signed-Message encoding")
			return
		}
		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			abort(c, "invalid signed message JSON")
			return
		}
		if req.Nonce == "" {
			abort(c, "missing nonce")
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			abort(c, "request expired")
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			abort(c, "expires_at too far in future")
			return
		}

		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			abort(c, "invalid signature hex")
			return
		}
		recovered, err := Recover(msgBytes, sig)
		if err != nil || recovered != wallet {
			abort(c, "invalid signature")
			return
		}

		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		ok, err := nonces.Claim(c.Request.Context(), req.Nonce, ttl)
		if err != nil {
			log.Error("claim nonce", zap.String("wallet", wallet.Hex()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			abort(c, "nonce already used")
			return
		}

		c.Set(WalletKey, wallet)
		c.Set(RequestKey, req)
		c.Next()
	}
}

// Wallet returns the authenticated wallet, or the zero address outside Middleware.
func Wallet(c *gin.Context) common.Address {
	v, _ := c.Get(WalletKey)
	a, _ := v.(common.Address)
	return a
}

// Request returns the decoded signed request.
func Request(c *gin.Context) (SignedRequest, bool) {
	v, ok := c.Get(RequestKey)
	if !ok {
		return SignedRequest{}, false
	}
	req, ok := v.(SignedRequest)
	return req, ok
}
