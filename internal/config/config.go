// Package config binds the process environment to a typed Config via
// viper, applying the dev/production fallback rules in §6
// "Environment/config". Load is called once by cmd/pokerd before any
// dependency (database pool, signer, chain bridge) is constructed.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cloutcards/pokerhouse/internal/apperr"
)

// devAdminAddress is the well-known Hardhat/Anvil account #0, used only
// when ADMIN_ADDRESSES is unset outside production.
const devAdminAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

const devRPCURL = "http://localhost:8545"

const defaultChainID = 31337

type Config struct {
	Mnemonic string

	ChainID int64

	ContractAddress string // empty disables the chain bridge listener (component C)

	RPCURL string

	AdminAddresses []string

	TeeVersion int

	AppPort int

	CorsOrigin string

	FrontendURL string

	BackendURL string

	Environment string

	DatabaseURL string
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the environment through viper and validates the
// production-required fields, returning an InternalFatal error that
// should abort the process before any listener starts (§7).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("CHAIN_ID", defaultChainID)
	v.SetDefault("RPC_URL", devRPCURL)
	v.SetDefault("TEE_VERSION", 1)
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/pokerhouse?sslmode=disable")

	env := v.GetString("NODE_ENV")
	if e := v.GetString("ENVIRONMENT"); e != "" {
		env = e
	}
	production := env == "production"

	mnemonic := v.GetString("MNEMONIC")
	if mnemonic == "" {
		return nil, apperr.New(apperr.InternalFatal, "MNEMONIC is required to sign")
	}

	if production && os.Getenv("RPC_URL") == "" {
		return nil, apperr.New(apperr.InternalFatal, "RPC_URL is required in production")
	}
	rpcURL := v.GetString("RPC_URL")

	if production && os.Getenv("CHAIN_ID") == "" {
		return nil, apperr.New(apperr.InternalFatal, "CHAIN_ID is required in production")
	}

	admins := parseAddressList(v.GetString("ADMIN_ADDRESSES"))
	if len(admins) == 0 {
		if production {
			return nil, apperr.New(apperr.InternalFatal, "ADMIN_ADDRESSES is required in production")
		}
		admins = []string{devAdminAddress}
	}

	return &Config{
		Mnemonic:        mnemonic,
		ChainID:         v.GetInt64("CHAIN_ID"),
		ContractAddress: v.GetString("CLOUTCARDS_CONTRACT_ADDRESS"),
		RPCURL:          rpcURL,
		AdminAddresses:  admins,
		TeeVersion:      v.GetInt("TEE_VERSION"),
		AppPort:         v.GetInt("APP_PORT"),
		CorsOrigin:      v.GetString("CORS_ORIGIN"),
		FrontendURL:     v.GetString("FRONTEND_URL"),
		BackendURL:      v.GetString("BACKEND_URL"),
		Environment:     env,
		DatabaseURL:     v.GetString("DATABASE_URL"),
	}, nil
}

func parseAddressList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
