package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "authority/pkg/domain-errors"
)

const EnvProduction = "production"

// Server captures process level configuration.
type Server struct {
	Addr      string
	Env       string
	LogLevel  string
	LogFormat string

	JWT      JWTConfig
	Auth     AuthConfig
	OTP      OTPConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
}

type JWTConfig struct {
	Secret          string
	Algorithm       string
	Audience        string
	Issuer          string
	AccessTokenTTL  time.Duration
	SessionTokenTTL time.Duration
	RefreshTokenTTL time.Duration
}

type AuthConfig struct {
	BcryptCost         int
	MaxSessions        int
	LoginHistoryLimit  int
	PermissionCacheTTL time.Duration
	CacheOpTimeout     time.Duration
	EnforceTokenOrigin bool
}

type OTPConfig struct {
	TTL           time.Duration
	MasterCode    string
	FastCode      string
	BypassEnabled bool

	// MaxAttempts failed verifications lock the identifier for LockoutDuration.
	MaxAttempts     int
	LockoutDuration time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// IsProduction reports whether APP_ENV names the production environment.
func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Env, EnvProduction)
}

// FromEnv builds a Server config from environment variables so main stays lean.
// It fails when a required value is missing or the token lifetimes are inconsistent.
func FromEnv() (Server, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Server, error) {
	env := envReader{lookup: lookup}

	cfg := Server{
		Addr:      env.str("AUTHORITY_ADDR", ":8080"),
		Env:       env.str("APP_ENV", "development"),
		LogLevel:  env.str("LOG_LEVEL", "info"),
		LogFormat: env.str("LOG_FORMAT", ""),
		JWT: JWTConfig{
			Secret:          env.str("JWT_SECRET", ""),
			Algorithm:       strings.ToUpper(env.str("JWT_ALGORITHM", "HS256")),
			Audience:        env.str("JWT_AUDIENCE", "authority"),
			Issuer:          env.str("JWT_ISSUER", "authority"),
			AccessTokenTTL:  env.minutes("ACCESS_TOKEN_TTL_MINUTES", 15),
			SessionTokenTTL: env.minutes("SESSION_TOKEN_TTL_MINUTES", 10080),
			RefreshTokenTTL: env.minutes("REFRESH_TOKEN_TTL_MINUTES", 43200),
		},
		Auth: AuthConfig{
			BcryptCost:         env.integer("BCRYPT_COST", bcrypt.DefaultCost),
			MaxSessions:        env.integer("MAX_SESSIONS", 5),
			LoginHistoryLimit:  env.integer("LOGIN_HISTORY_LIMIT", 50),
			PermissionCacheTTL: env.minutes("PERMISSION_CACHE_TTL_MINUTES", 60),
			CacheOpTimeout:     time.Duration(env.integer("CACHE_OP_TIMEOUT_MS", 250)) * time.Millisecond,
			EnforceTokenOrigin: env.boolean("ENFORCE_TOKEN_ORIGIN", false),
		},
		OTP: OTPConfig{
			TTL:           time.Duration(env.integer("OTP_TTL_SECONDS", 600)) * time.Second,
			MasterCode:    env.str("OTP_MASTER_CODE", ""),
			FastCode:      env.str("OTP_FAST_CODE", ""),
			BypassEnabled: env.boolean("OTP_BYPASS_ENABLED", false),

			MaxAttempts:     env.integer("OTP_MAX_ATTEMPTS", 5),
			LockoutDuration: env.minutes("OTP_LOCKOUT_MINUTES", 15),
		},
		Redis: RedisConfig{
			URL:          env.str("REDIS_URL", ""),
			PoolSize:     env.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: env.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             env.str("DATABASE_URL", ""),
			MaxOpenConns:    env.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    env.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:    env.list("KAFKA_BROKERS"),
			AuditTopic: env.str("KAFKA_AUDIT_TOPIC", "authority.audit"),
		},
	}

	if env.err != nil {
		return Server{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate enforces the startup invariants. Errors carry CodeConfigurationMissing
// or CodeInvalidInput so main can report them uniformly.
func (s Server) Validate() error {
	if s.JWT.Secret == "" {
		return dErrors.New(dErrors.CodeConfigurationMissing, "JWT_SECRET is required")
	}
	switch s.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported JWT_ALGORITHM %q", s.JWT.Algorithm))
	}
	if s.JWT.AccessTokenTTL <= 0 || s.JWT.SessionTokenTTL <= 0 || s.JWT.RefreshTokenTTL <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "token lifetimes must be positive")
	}
	if s.JWT.AccessTokenTTL >= s.JWT.SessionTokenTTL {
		return dErrors.New(dErrors.CodeInvalidInput, "access token lifetime must be shorter than session token lifetime")
	}
	if s.JWT.SessionTokenTTL > s.JWT.RefreshTokenTTL {
		return dErrors.New(dErrors.CodeInvalidInput, "session token lifetime must not exceed refresh token lifetime")
	}
	if s.Auth.BcryptCost < bcrypt.MinCost || s.Auth.BcryptCost > bcrypt.MaxCost {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if s.Auth.MaxSessions < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "MAX_SESSIONS must be at least 1")
	}
	if s.Auth.LoginHistoryLimit < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "LOGIN_HISTORY_LIMIT must be at least 1")
	}
	if s.OTP.MaxAttempts < 1 || s.OTP.LockoutDuration <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "OTP_MAX_ATTEMPTS and OTP_LOCKOUT_MINUTES must be positive")
	}
	if s.Auth.PermissionCacheTTL <= 0 || s.Auth.CacheOpTimeout <= 0 || s.OTP.TTL <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "cache and OTP lifetimes must be positive")
	}
	return nil
}

// envReader collects the first parse error so FromEnv can report it once.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) minutes(key string, def int) time.Duration {
	return time.Duration(e.integer(key, def)) * time.Minute
}

func (e *envReader) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("invalid value for %s", key))
	}
}
