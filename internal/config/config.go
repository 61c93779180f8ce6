package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Rules      RulesConfig
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	Ledger     LedgerConfig
	Settlement SettlementConfig
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	HMACSecret string `mapstructure:"hmac_secret"`
}

type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	UseInMemory bool   `mapstructure:"use_inmemory"`
}

type RulesConfig struct {
	DailyCap     int64 `mapstructure:"daily_cap"`
	AwardEvery   int64 `mapstructure:"award_every"`
	MaxBatchTaps int64 `mapstructure:"max_batch_taps"`
	TSSkewSec    int64 `mapstructure:"ts_skew_sec"`
	IdemTapTTL   int64 `mapstructure:"idem_tap_ttl_sec"`
	IdemPayTTL   int64 `mapstructure:"idem_payout_ttl_sec"`
}

type RateLimitConfig struct {
	Max       int64 `mapstructure:"max"`
	WindowSec int64 `mapstructure:"window_sec"`
}

type LedgerConfig struct {
	MySQLDSN string `mapstructure:"mysql_dsn"`
	Skip     bool   `mapstructure:"skip"`
}

type SettlementConfig struct {
	DryRun          bool   `mapstructure:"dry_run"`
	RPCURL          string `mapstructure:"rpc_url"`
	PrivateKey      string `mapstructure:"private_key"`
	ChainID         int64  `mapstructure:"chain_id"`
	NFTContract     string `mapstructure:"nft_contract"`
	PayoutAmountWei string `mapstructure:"payout_amount_wei"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("rules.daily_cap", 200)
	v.SetDefault("rules.award_every", 10)
	v.SetDefault("rules.max_batch_taps", 100)
	v.SetDefault("rules.ts_skew_sec", 120)
	v.SetDefault("rules.idem_tap_ttl_sec", 120)
	v.SetDefault("rules.idem_payout_ttl_sec", 300)
	v.SetDefault("ratelimit.max", 120)
	v.SetDefault("ratelimit.window_sec", 60)
	v.SetDefault("settlement.dry_run", true)
	v.SetDefault("settlement.payout_amount_wei", "10000000000000000")

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
		"server.port":                  "PORT",
		"server.hmac_secret":           "HMAC_SECRET",
		"redis.addr":                   "REDIS_ADDR",
		"redis.password":               "REDIS_PASSWORD",
		"redis.use_inmemory":           "USE_INMEMORY",
		"rules.daily_cap":              "DAILY_TAP_CAP",
		"rules.award_every":            "AWARD_EVERY_N_TAPS",
		"rules.max_batch_taps":         "MAX_BATCH_TAPS",
		"rules.ts_skew_sec":            "TS_SKEW_SEC",
		"ratelimit.max":                "RATE_LIMIT_MAX",
		"ratelimit.window_sec":         "RATE_LIMIT_WINDOW_SEC",
		"ledger.mysql_dsn":             "MYSQL_DSN",
		"ledger.skip":                  "SKIP_MYSQL",
		"settlement.dry_run":           "DRY_RUN",
		"settlement.rpc_url":           "RPC_URL",
		"settlement.private_key":       "PAYOUT_PRIVATE_KEY",
		"settlement.chain_id":          "CHAIN_ID",
		"settlement.nft_contract":      "DOGG_NFT_CONTRACT_ADDRESS",
		"settlement.payout_amount_wei": "PAYOUT_AMOUNT_WEI",
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

func (c *Config) validate() error {
	if c.Server.HMACSecret == "" {
		return fmt.Errorf("required config missing: HMAC_SECRET")
	}
	if c.Rules.DailyCap <= 0 || c.Rules.AwardEvery <= 0 || c.Rules.MaxBatchTaps <= 0 {
		return fmt.Errorf("quota rules must be positive")
	}
	// Chain settings only matter when transfers are real.
	if !c.Settlement.DryRun {
		for _, r := range []struct{ val, name string }{
			{c.Settlement.RPCURL, "RPC_URL"},
			{c.Settlement.PrivateKey, "PAYOUT_PRIVATE_KEY"},
		} {
			if r.val == "" {
				return fmt.Errorf("required config missing: %s", r.name)
			}
		}
		if c.Settlement.ChainID == 0 {
			return fmt.Errorf("required config missing: CHAIN_ID")
		}
	}
	return nil
}
