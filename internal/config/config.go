// Package config loads gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const envPrefix = "DISTRIBUTOR_"

// Fixed by the revocation model; not configurable.
const (
	RevocationRetention = 24 * time.Hour
	SweepInterval       = 24 * time.Hour
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is built once at startup and passed by value afterwards.
type Config struct {
	HTTPAddr string
	LogLevel string

	PostgresDSN    string
	MicroinvestDSN string
	RedisURL       string

	// Store selects where accounts, roles and mappings live.
	Store string
	// RevocationBackend selects where revoked tokens live.
	RevocationBackend string

	SecretKey      string
	Algorithm      string
	AccessTokenTTL time.Duration
	BcryptCost     int

	RoleCacheSize   int
	LoginRatePerSec int
	LoginRateBurst  int
	// TrustedProxies lists peers whose X-Forwarded-For is believed.
	TrustedProxies []netip.Prefix

	ShutdownTimeout time.Duration
}

// Load reads DISTRIBUTOR_* variables, applies defaults and validates the result.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		PostgresDSN:       getenv("PG_DSN", ""),
		MicroinvestDSN:    getenv("MICROINVEST_DSN", ""),
		RedisURL:          getenv("REDIS_URL", ""),
		Store:             strings.ToLower(getenv("STORE", BackendPostgres)),
		RevocationBackend: strings.ToLower(getenv("REVOCATION_BACKEND", "")),
		SecretKey:         getenv("SECRET_KEY", ""),
		Algorithm:         strings.ToUpper(getenv("ALGORITHM", "HS256")),
	}

	minutes, err := getint("ACCESS_TOKEN_EXPIRE_MINUTES", 15)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL = time.Duration(minutes) * time.Minute
	if cfg.BcryptCost, err = getint("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.RoleCacheSize, err = getint("ROLE_CACHE_SIZE", 128); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerSec, err = getint("LOGIN_RATE_PER_SEC", 5); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateBurst, err = getint("LOGIN_RATE_BURST", 10); err != nil {
		return Config{}, err
	}
	if cfg.TrustedProxies, err = parsePrefixes(getenv("TRUSTED_PROXIES", "")); err != nil {
		return Config{}, err
	}
	shutdown, err := getint("SHUTDOWN_TIMEOUT_SECONDS", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout = time.Duration(shutdown) * time.Second

	if cfg.RevocationBackend == "" {
		cfg.RevocationBackend = cfg.Store
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistency found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("config: DISTRIBUTOR_SECRET_KEY is required")
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported signing algorithm %q", c.Algorithm)
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("config: access token ttl must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: bcrypt cost %d out of range", c.BcryptCost)
	}
	switch c.Store {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: DISTRIBUTOR_PG_DSN is required for the postgres store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	switch c.RevocationBackend {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: DISTRIBUTOR_PG_DSN is required for postgres revocation")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: DISTRIBUTOR_REDIS_URL is required for redis revocation")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown revocation backend %q", c.RevocationBackend)
	}
	if c.RoleCacheSize <= 0 {
		return errors.New("config: role cache size must be positive")
	}
	if c.LoginRatePerSec <= 0 || c.LoginRateBurst <= 0 {
		return errors.New("config: login rate limits must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getint(key string, def int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return v, nil
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
func parsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, fmt.Errorf("config: %sTRUSTED_PROXIES: %w", envPrefix, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, fmt.Errorf("config: %sTRUSTED_PROXIES: %w", envPrefix, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
