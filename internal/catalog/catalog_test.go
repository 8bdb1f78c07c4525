package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"fundingflow/internal/models"
)

func writeCatalogFiles(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	instruments := filepath.Join(dir, "instruments.json")
	coins := filepath.Join(dir, "coins.json")

	instContent := `{
  "aevo": ["BTC-PERP", "ETH-PERP"],
  "bybit": ["BTC/USDT:USDT", "SOL/USDT:USDT"],
  "gateio": ["BTC/USDT:USDT"],
  "hyperliquid": ["BTC", "DOGE"]
}`
	coinContent := `{
  "bitcoin": {"symbol": "BTC", "name": "Bitcoin"},
  "solana": {"symbol": "SOL", "name": "Solana"}
}`
	if err := os.WriteFile(instruments, []byte(instContent), 0o644); err != nil {
		t.Fatalf("write instruments: %v", err)
	}
	if err := os.WriteFile(coins, []byte(coinContent), 0o644); err != nil {
		t.Fatalf("write coins: %v", err)
	}
	return instruments, coins
}

func TestLoadAndTickers(t *testing.T) {
	instruments, coins := writeCatalogFiles(t)
	c, err := Load(instruments, coins)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := c.Instruments(models.ExchangeAevo); len(got) != 2 || got[0] != "BTC-PERP" {
		t.Errorf("unexpected aevo instruments: %v", got)
	}

	// Union over all exchanges, deduplicated and sorted.
	want := []string{"BTC", "DOGE", "ETH", "SOL"}
	got := c.Tickers()
	if len(got) != len(want) {
		t.Fatalf("Tickers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tickers() = %v, want %v", got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	instruments, coins := writeCatalogFiles(t)
	c, err := Load(instruments, coins)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	meta := c.Lookup("BTC")
	if meta.Name != "Bitcoin" {
		t.Errorf("Lookup(BTC).Name = %s", meta.Name)
	}
	if meta.Logo != "https://cryptologos.cc/logos/bitcoin-btc-logo.png" {
		t.Errorf("Lookup(BTC).Logo = %s", meta.Logo)
	}

	// Unknown tickers fall back to a title-cased name and the default logo.
	meta = c.Lookup("DOGE")
	if meta.Name != "Doge" {
		t.Errorf("Lookup(DOGE).Name = %s", meta.Name)
	}
	if meta.Logo != defaultLogo {
		t.Errorf("Lookup(DOGE).Logo = %s", meta.Logo)
	}
}

func TestLoadUnknownExchange(t *testing.T) {
	dir := t.TempDir()
	instruments := filepath.Join(dir, "instruments.json")
	coins := filepath.Join(dir, "coins.json")
	os.WriteFile(instruments, []byte(`{"binance": ["BTCUSDT"]}`), 0o644)
	os.WriteFile(coins, []byte(`{}`), 0o644)

	if _, err := Load(instruments, coins); err == nil {
		t.Fatal("expected error for unknown exchange")
	}
}
