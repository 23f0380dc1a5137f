package domain

import "fmt"

// SymbolTable holds the configured base-asset ("coin") → symbol mapping.
// The mapping is injective: no two coins may map to the same symbol.
type SymbolTable struct {
	coinToSymbol map[string]string
	symbolToCoin map[string]string
}

// NewSymbolTable builds a table from a coin→symbol map, rejecting any
// mapping that is not injective.
func NewSymbolTable(coinToSymbol map[string]string) (*SymbolTable, error) {
	t := &SymbolTable{
		coinToSymbol: make(map[string]string, len(coinToSymbol)),
		symbolToCoin: make(map[string]string, len(coinToSymbol)),
	}
	for coin, symbol := range coinToSymbol {
		if existing, ok := t.symbolToCoin[symbol]; ok {
			return nil, fmt.Errorf("domain: symbol table not injective: %q and %q both map to %q", existing, coin, symbol)
		}
		t.coinToSymbol[coin] = symbol
		t.symbolToCoin[symbol] = coin
	}
	return t, nil
}

// Symbol resolves a coin to its symbol, returning ErrUnknownSymbol if the
// coin is not configured.
func (t *SymbolTable) Symbol(coin string) (string, error) {
	symbol, ok := t.coinToSymbol[coin]
	if !ok {
		return "", fmt.Errorf("domain: coin %q: %w", coin, ErrUnknownSymbol)
	}
	return symbol, nil
}

// Coin resolves a symbol back to its base asset.
func (t *SymbolTable) Coin(symbol string) (string, bool) {
	coin, ok := t.symbolToCoin[symbol]
	return coin, ok
}
