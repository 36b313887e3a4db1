package configpkg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	env := "DB_DRIVER=memory\nTOKEN_SYMMETRIC_KEY=12345678901234567890123456789012\nKAFKA_BROKERS=k1:9092, k2:9092\n"
	if err := os.WriteFile(filepath.Join(dir, "app.env"), []byte(env), 0o600); err != nil {
		t.Fatalf("os.WriteFile() returned error: %v", err)
	}

	t.Setenv("MAX_TRANSFER_ATTEMPTS", "7")

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(%v) returned error: %v", dir, err)
	}

	if got.DBDriver != "memory" {
		t.Errorf("DBDriver = %q, want memory", got.DBDriver)
	}

	if got.MaxTransferAttempts != 7 {
		t.Errorf("MaxTransferAttempts = %d, want 7", got.MaxTransferAttempts)
	}

	if got.StoreRetryAttempts != 3 || got.StoreRetryInterval != 50*time.Millisecond {
		t.Errorf("store retry = %d/%v, want defaults 3/50ms", got.StoreRetryAttempts, got.StoreRetryInterval)
	}

	if got.AccessTokenDuration != 15*time.Minute {
		t.Errorf("AccessTokenDuration = %v, want 15m", got.AccessTokenDuration)
	}

	if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, got.Brokers()); diff != "" {
		t.Errorf("Brokers() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("CORE_BANKING_URL", "http://fineract:8443")

	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if got.CoreBankingURL != "http://fineract:8443" {
		t.Errorf("CoreBankingURL = %q, want env value", got.CoreBankingURL)
	}

	if got.Brokers() != nil {
		t.Errorf("Brokers() = %v, want nil", got.Brokers())
	}
}
