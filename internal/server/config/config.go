// Package config handles configuration for the auth server, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinSecretKeyLength is the shortest HMAC secret the server accepts.
const MinSecretKeyLength = 32

// MinTokenValidity is the shortest token lifetime the server accepts.
// JWT timestamps have one-second resolution.
const MinTokenValidity = time.Second

// Config holds runtime settings for the gophauth server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the public gRPC endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory store.
//   - SecretKey: HMAC secret for signing JWTs (HS256). No default; must be supplied.
//   - Issuer: value of the iss claim, checked on verification.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - BcryptCost: work factor for password hashing.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddrGRPC             string
	DatabaseDSN                  string
	SecretKey                    string
	Issuer                       string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	BcryptCost                   int
	LogLevel                     string
}

// LoadDefaults populates Config with development defaults. SecretKey is
// intentionally left empty.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.Issuer = "gophauth"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.BcryptCost = bcrypt.DefaultCost + 2
	c.LogLevel = "info"
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.SecretKey) < MinSecretKeyLength {
		errs = append(errs, fmt.Errorf("secret key must be at least %d bytes", MinSecretKeyLength))
	}
	if c.AccessTokenValidityDuration < MinTokenValidity {
		errs = append(errs, fmt.Errorf("access token validity must be at least %s", MinTokenValidity))
	}
	if c.RefreshTokenValidityDuration < MinTokenValidity {
		errs = append(errs, fmt.Errorf("refresh token validity must be at least %s", MinTokenValidity))
	}
	if c.RefreshTokenValidityDuration < c.AccessTokenValidityDuration {
		errs = append(errs, errors.New("refresh token validity must not be shorter than access token validity"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.EndpointAddrGRPC == "" {
		errs = append(errs, errors.New("grpc endpoint address is required"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
