package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MNEMONIC", "RPC_URL", "CHAIN_ID", "ADMIN_ADDRESSES",
		"NODE_ENV", "ENVIRONMENT", "CLOUTCARDS_CONTRACT_ADDRESS",
		"TEE_VERSION", "APP_PORT", "CORS_ORIGIN", "DATABASE_URL",
		"FRONTEND_URL", "BACKEND_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresMnemonic(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail without MNEMONIC")
	}
}

func TestLoadAppliesDevDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsProduction() {
		t.Fatalf("expected development environment by default")
	}
	if cfg.ChainID != defaultChainID {
		t.Fatalf("got chain id %d want %d", cfg.ChainID, defaultChainID)
	}
	if cfg.RPCURL != devRPCURL {
		t.Fatalf("got rpc url %q want %q", cfg.RPCURL, devRPCURL)
	}
	if len(cfg.AdminAddresses) != 1 || cfg.AdminAddresses[0] != devAdminAddress {
		t.Fatalf("expected the well-known dev admin address, got %v", cfg.AdminAddresses)
	}
	if cfg.ContractAddress != "" {
		t.Fatalf("expected the chain bridge to be disabled by default, got %q", cfg.ContractAddress)
	}
}

func TestLoadProductionRequiresRPCURLChainIDAndAdmins(t *testing.T) {
	clearEnv(t)
	t.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	t.Setenv("NODE_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail in production without RPC_URL")
	}

	t.Setenv("RPC_URL", "https://rpc.example.test")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail in production without CHAIN_ID")
	}

	t.Setenv("CHAIN_ID", "1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail in production without ADMIN_ADDRESSES")
	}

	t.Setenv("ADMIN_ADDRESSES", "0x1111111111111111111111111111111111111111,0x2222222222222222222222222222222222222222")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production environment")
	}
	if len(cfg.AdminAddresses) != 2 {
		t.Fatalf("got %d admin addresses want 2", len(cfg.AdminAddresses))
	}
}

func TestParseAddressListTrimsAndDropsEmpty(t *testing.T) {
	got := parseAddressList(" 0xAAA , , 0xBBB ")
	want := []string{"0xAAA", "0xBBB"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
