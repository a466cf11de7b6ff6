// Package symbol holds the static reference data for tradable instruments
// and ticker normalization/validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBasePrice seeds simulation for tickers missing from the catalog.
var DefaultBasePrice = decimal.NewFromInt(100)

// tickerRegex matches exchange-style tickers: 1-5 letters, optional class suffix.
// Example: AAPL, GOOGL, BRK.B
var tickerRegex = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

var ErrInvalidTicker = errors.New("symbol: invalid ticker format")

// Symbol is static metadata for one instrument.
type Symbol struct {
	Ticker      string          `json:"symbol"`
	Name        string          `json:"name"`
	Sector      string          `json:"sector"`
	Industry    string          `json:"industry"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
}

// Normalize upper-cases and validates a ticker string.
func Normalize(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerRegex.MatchString(t) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	return t, nil
}

func sym(ticker, name, sector, industry, desc string, base int64) Symbol {
	return Symbol{
		Ticker:      ticker,
		Name:        name,
		Sector:      sector,
		Industry:    industry,
		Description: desc,
		BasePrice:   decimal.NewFromInt(base),
	}
}

// All returns the default trading universe in display order.
func All() []Symbol {
	return []Symbol{
		sym("AAPL", "Apple Inc.", "Technology", "Consumer Electronics",
			"Apple designs, manufactures, and markets smartphones, personal computers, tablets, wearables, and accessories worldwide.", 182),
		sym("MSFT", "Microsoft Corporation", "Technology", "Software",
			"Microsoft develops, licenses, and supports software, services, devices, and solutions worldwide.", 375),
		sym("GOOGL", "Alphabet Inc.", "Technology", "Internet",
			"Alphabet is a holding company with Google as its main subsidiary, providing internet-related services and products.", 143),
		sym("AMZN", "Amazon.com Inc.", "Consumer Cyclical", "Internet Retail",
			"Amazon operates as an online retailer and web services provider in North America and internationally.", 175),
		sym("TSLA", "Tesla Inc.", "Consumer Cyclical", "Auto Manufacturers",
			"Tesla designs, develops, manufactures, leases, and sells electric vehicles and energy generation and storage systems.", 242),
		sym("NVDA", "NVIDIA Corporation", "Technology", "Semiconductors",
			"NVIDIA provides graphics, computing, and networking solutions worldwide.", 600),
		sym("META", "Meta Platforms Inc.", "Technology", "Internet",
			"Meta develops products that enable people to connect and share with friends and family through mobile devices and computers.", 350),
		sym("NFLX", "Netflix Inc.", "Communication Services", "Entertainment",
			"Netflix provides subscription streaming entertainment service including TV series, films, and games.", 500),
		sym("AMD", "Advanced Micro Devices", "Technology", "Semiconductors",
			"AMD operates as a semiconductor company worldwide, providing processors and graphics cards.", 120),
		sym("INTC", "Intel Corporation", "Technology", "Semiconductors",
			"Intel designs, manufactures, and sells computer components and related products worldwide.", 45),
	}
}

// Catalog is an ordered, indexed set of symbols.
type Catalog struct {
	syms     []Symbol
	byTicker map[string]Symbol
}

// NewCatalog indexes syms by ticker. Later duplicates are ignored.
func NewCatalog(syms []Symbol) *Catalog {
	c := &Catalog{byTicker: make(map[string]Symbol, len(syms))}
	for _, s := range syms {
		if _, dup := c.byTicker[s.Ticker]; dup {
			continue
		}
		c.byTicker[s.Ticker] = s
		c.syms = append(c.syms, s)
	}
	return c
}

// Universe builds a catalog for the given tickers. Tickers absent from the
// built-in reference data get a placeholder entry with DefaultBasePrice.
// An empty list yields the full default universe.
func Universe(tickers []string) (*Catalog, error) {
	if len(tickers) == 0 {
		return NewCatalog(All()), nil
	}
	known := NewCatalog(All())
	out := make([]Symbol, 0, len(tickers))
	for _, raw := range tickers {
		t, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, known.Lookup(t))
	}
	return NewCatalog(out), nil
}

// List returns the symbols in catalog order.
func (c *Catalog) List() []Symbol {
	return append([]Symbol(nil), c.syms...)
}

// Tickers returns the ticker strings in catalog order.
func (c *Catalog) Tickers() []string {
	out := make([]string, len(c.syms))
	for i, s := range c.syms {
		out[i] = s.Ticker
	}
	return out
}

// Get returns the symbol for ticker and whether it is in the catalog.
func (c *Catalog) Get(ticker string) (Symbol, bool) {
	s, ok := c.byTicker[ticker]
	return s, ok
}

// Lookup returns the symbol for ticker, or placeholder metadata with
// DefaultBasePrice when unknown.
func (c *Catalog) Lookup(ticker string) Symbol {
	if s, ok := c.byTicker[ticker]; ok {
		return s
	}
	return Symbol{
		Ticker:      ticker,
		Name:        ticker,
		Sector:      "Unknown",
		Industry:    "Unknown",
		Description: "Company information not available.",
		BasePrice:   DefaultBasePrice,
	}
}

// Search returns symbols whose ticker or name contains term, case-insensitively.
// An empty term matches everything.
func (c *Catalog) Search(term string) []Symbol {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return c.List()
	}
	var out []Symbol
	for _, s := range c.syms {
		if strings.Contains(strings.ToLower(s.Ticker), term) ||
			strings.Contains(strings.ToLower(s.Name), term) {
			out = append(out, s)
		}
	}
	return out
}
