package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/udao-org/udao-voucher/internal/voucher"
)

// Chain id sources.
const (
	ChainIDFromContract = "contract"
	ChainIDFromNetwork  = "network"
)

type Config struct {
	Redis    RedisConfig
	Chain    ChainConfig
	Signer   SignerConfig
	Families map[string]FamilyConfig
	API      APIConfig
	Server   ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
	// ChainID pins every domain to a fixed chain id instead of asking the
	// verifier. Zero means discover.
	ChainID       int64  `mapstructure:"chain_id"`
	ChainIDSource string `mapstructure:"chain_id_source"`
}

type SignerConfig struct {
	PrivateKey         string `mapstructure:"private_key"`
	KeystoreDir        string `mapstructure:"keystore_dir"`
	KeystoreAddress    string `mapstructure:"keystore_address"`
	KeystorePassphrase string `mapstructure:"keystore_passphrase"`
}

// FamilyConfig enables one voucher family. Empty domain fields keep the
// family's built-in values. Only admins issue vouchers of a family unless
// SelfService lets wallets request vouchers addressed to themselves.
type FamilyConfig struct {
	Contract      string `mapstructure:"contract"`
	DomainName    string `mapstructure:"domain_name"`
	DomainVersion string `mapstructure:"domain_version"`
	SelfService   bool   `mapstructure:"self_service"`
}

type APIConfig struct {
	AdminAddresses []string `mapstructure:"admin_addresses"`
	LedgerTTLSec   int64    `mapstructure:"ledger_ttl_sec"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("chain.chain_id_source", ChainIDFromContract)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"chain.rpc_url":              "RPC_URL",
		"chain.chain_id":             "CHAIN_ID",
		"chain.chain_id_source":      "CHAIN_ID_SOURCE",
		"signer.private_key":         "SIGNER_PRIVATE_KEY",
		"signer.keystore_dir":        "SIGNER_KEYSTORE_DIR",
		"signer.keystore_address":    "SIGNER_KEYSTORE_ADDRESS",
		"signer.keystore_passphrase": "SIGNER_KEYSTORE_PASSPHRASE",
		"api.admin_addresses":        "ADMIN_ADDRESSES",
		"api.ledger_ttl_sec":         "LEDGER_TTL_SEC",
		"server.port":                "PORT",
	}
	for _, f := range voucher.Families() {
		prefix := strings.ToUpper(f.ID)
		bindings["families."+f.ID+".contract"] = prefix + "_CONTRACT"
		bindings["families."+f.ID+".domain_name"] = prefix + "_DOMAIN_NAME"
		bindings["families."+f.ID+".domain_version"] = prefix + "_DOMAIN_VERSION"
		bindings["families."+f.ID+".self_service"] = prefix + "_SELF_SERVICE"
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

// EnabledFamilies returns the built-in families that have a verifying
// contract configured, with any domain overrides applied.
func (c *Config) EnabledFamilies() []voucher.Family {
	var out []voucher.Family
	for _, f := range voucher.Families() {
		fc, ok := c.Families[f.ID]
		if !ok || fc.Contract == "" {
			continue
		}
		out = append(out, f.WithDomain(fc.DomainName, fc.DomainVersion))
	}
	return out
}

// SelfServiceFamilies returns the ids of enabled families that wallets may
// issue to themselves.
func (c *Config) SelfServiceFamilies() []string {
	var out []string
	for _, f := range c.EnabledFamilies() {
		if c.Families[f.ID].SelfService {
			out = append(out, f.ID)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Signer.PrivateKey == "" && (c.Signer.KeystoreDir == "" || c.Signer.KeystoreAddress == "") {
		return fmt.Errorf("required config missing: SIGNER_PRIVATE_KEY or SIGNER_KEYSTORE_DIR+SIGNER_KEYSTORE_ADDRESS")
	}
	if c.Signer.KeystoreAddress != "" && !common.IsHexAddress(c.Signer.KeystoreAddress) {
		return fmt.Errorf("invalid SIGNER_KEYSTORE_ADDRESS %q", c.Signer.KeystoreAddress)
	}
	if c.Chain.ChainID < 0 {
		return fmt.Errorf("invalid CHAIN_ID %d: must be positive", c.Chain.ChainID)
	}
	if c.Chain.RPCURL == "" && c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: RPC_URL or CHAIN_ID")
	}
	switch c.Chain.ChainIDSource {
	case ChainIDFromContract, ChainIDFromNetwork:
	default:
		return fmt.Errorf("invalid CHAIN_ID_SOURCE %q (want %s or %s)",
			c.Chain.ChainIDSource, ChainIDFromContract, ChainIDFromNetwork)
	}

	enabled := 0
	for id, fc := range c.Families {
		if _, err := voucher.Lookup(id); err != nil {
			return fmt.Errorf("families.%s: %w", id, err)
		}
		if fc.Contract == "" {
			continue
		}
		if !common.IsHexAddress(fc.Contract) {
			return fmt.Errorf("invalid %s_CONTRACT %q", strings.ToUpper(id), fc.Contract)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("required config missing: at least one <FAMILY>_CONTRACT")
	}

	for _, a := range c.API.AdminAddresses {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid ADMIN_ADDRESSES entry %q", a)
		}
	}
	return nil
}
