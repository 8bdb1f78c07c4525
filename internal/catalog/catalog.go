package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fundingflow/internal/models"
	"fundingflow/internal/symbols"
)

const defaultLogo = "https://cryptologos.cc/logos/default-logo.png"

// Coin is the display metadata attached to a ticker.
type Coin struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Meta is what the query API serves per ticker.
type Meta struct {
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// Catalog holds the static instrument lists per exchange and the coin
// metadata used to decorate aggregation results. It is immutable after Load.
type Catalog struct {
	instruments map[models.Exchange][]string
	coins       map[string]Coin
	titler      cases.Caser
}

// Load reads the instrument and coin catalogs from disk. The instruments
// file maps exchange name to its native instrument list; the coins file maps
// a catalog id to symbol and display name.
func Load(instrumentsPath, coinsPath string) (*Catalog, error) {
	c := &Catalog{
		instruments: make(map[models.Exchange][]string),
		coins:       make(map[string]Coin),
		titler:      cases.Title(language.English),
	}

	data, err := os.ReadFile(instrumentsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read instruments catalog: %w", err)
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse instruments catalog: %w", err)
	}
	for name, list := range raw {
		ex, ok := models.ParseExchange(name)
		if !ok {
			return nil, fmt.Errorf("instruments catalog references unknown exchange %q", name)
		}
		c.instruments[ex] = append([]string(nil), list...)
	}

	data, err = os.ReadFile(coinsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read coins catalog: %w", err)
	}
	var coins map[string]Coin
	if err := json.Unmarshal(data, &coins); err != nil {
		return nil, fmt.Errorf("failed to parse coins catalog: %w", err)
	}
	for _, coin := range coins {
		if coin.Symbol == "" {
			continue
		}
		c.coins[strings.ToUpper(coin.Symbol)] = coin
	}

	return c, nil
}

// Instruments returns the native instrument names configured for ex.
func (c *Catalog) Instruments(ex models.Exchange) []string {
	return c.instruments[ex]
}

// Tickers returns the canonical ticker universe: the union of all exchanges'
// instruments mapped through the symbol normaliser, sorted and deduplicated.
func (c *Catalog) Tickers() []string {
	seen := make(map[string]struct{})
	for ex, list := range c.instruments {
		for _, inst := range list {
			seen[symbols.Ticker(string(ex), inst)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves display metadata for a ticker. Unknown tickers get a
// title-cased name and the default logo so API responses stay uniform.
func (c *Catalog) Lookup(ticker string) Meta {
	sym := strings.ToUpper(ticker)
	coin, ok := c.coins[sym]
	if !ok {
		return Meta{
			Name: c.titler.String(strings.ToLower(ticker)),
			Logo: defaultLogo,
		}
	}
	return Meta{
		Name: coin.Name,
		Logo: logoURL(coin),
	}
}

// logoURL builds the cryptologos.cc URL from the coin's display name and
// symbol, e.g. "Bitcoin"/"BTC" -> .../bitcoin-btc-logo.png.
func logoURL(coin Coin) string {
	name := strings.ToLower(coin.Name)
	name = strings.ReplaceAll(name, " ", "-")
	return fmt.Sprintf("https://cryptologos.cc/logos/%s-%s-logo.png", name, strings.ToLower(coin.Symbol))
}
