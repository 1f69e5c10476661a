package schema

import (
	"fmt"
	"math"
)

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for common numeric fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale" yaml:"priceScale"`
	QuantityScale Scale `json:"quantityScale" yaml:"quantityScale"`
	FeeScale      Scale `json:"feeScale" yaml:"feeScale"`
}

// PriceToFloat converts a scaled price to a float value.
func (s ScaleSpec) PriceToFloat(p Price) float64 {
	return float64(p) / math.Pow10(int(s.PriceScale))
}

// QtyToFloat converts a scaled quantity to a float value.
func (s ScaleSpec) QtyToFloat(q Quantity) float64 {
	return float64(q) / math.Pow10(int(s.QuantityScale))
}

// FeeToFloat converts a scaled fee to a float value.
func (s ScaleSpec) FeeToFloat(f Fee) float64 {
	return float64(f) / math.Pow10(int(s.FeeScale))
}

// PriceFromFloat converts a float value to a scaled price, rounding half up.
func (s ScaleSpec) PriceFromFloat(v float64) Price {
	return Price(math.Round(v * math.Pow10(int(s.PriceScale))))
}

// QtyFromFloat converts a float value to a scaled quantity, rounding half up.
func (s ScaleSpec) QtyFromFloat(v float64) Quantity {
	return Quantity(math.Round(v * math.Pow10(int(s.QuantityScale))))
}

// FeeFromFloat converts a float value to a scaled fee, rounding half up.
func (s ScaleSpec) FeeFromFloat(v float64) Fee {
	return Fee(math.Round(v * math.Pow10(int(s.FeeScale))))
}

// VenueID is the numeric identifier for a venue or broker.
type VenueID uint16

// SymbolID is the numeric identifier for an instrument.
type SymbolID uint32

// Venue describes a trading venue or broker.
type Venue struct {
	ID   VenueID
	Name string
}

// Symbol describes a tradable instrument.
type Symbol struct {
	ID      SymbolID
	VenueID VenueID
	Name    string
	Scale   ScaleSpec
}

// Registry stores venue and instrument mappings in a compact form.
type Registry struct {
	venues       []Venue
	symbols      []Symbol
	venueByName  map[string]VenueID
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:  make(map[string]VenueID),
		symbolByName: make(map[string]SymbolID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, fmt.Errorf("venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, fmt.Errorf("venue already exists: %s", name)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddSymbol registers a new instrument and returns its ID.
func (r *Registry) AddSymbol(name string, venueID VenueID, scale ScaleSpec) (SymbolID, error) {
	if name == "" {
		return 0, fmt.Errorf("symbol name is empty")
	}
	if _, ok := r.Venue(venueID); !ok {
		return 0, fmt.Errorf("venue id not found: %d", venueID)
	}
	if id, ok := r.symbolByName[name]; ok {
		return id, fmt.Errorf("symbol already exists: %s", name)
	}
	id := SymbolID(len(r.symbols) + 1)
	r.symbols = append(r.symbols, Symbol{
		ID:      id,
		VenueID: venueID,
		Name:    name,
		Scale:   scale,
	})
	r.symbolByName[name] = id
	return id, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Symbol returns the instrument by ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if id == 0 || int(id) > len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// VenueIDByName resolves a venue name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// SymbolIDByName resolves an instrument name.
func (r *Registry) SymbolIDByName(name string) (SymbolID, bool) {
	id, ok := r.symbolByName[name]
	return id, ok
}

// SymbolCount returns the number of instruments in the registry.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// SymbolAt returns the instrument by zero-based index.
func (r *Registry) SymbolAt(index int) (Symbol, bool) {
	if index < 0 || index >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[index], true
}

// Scale returns the scale spec for an instrument, or a zero spec when the
// instrument is unknown.
func (r *Registry) Scale(id SymbolID) ScaleSpec {
	sym, ok := r.Symbol(id)
	if !ok {
		return ScaleSpec{}
	}
	return sym.Scale
}
