// Package catalog holds the static bin classification table: which bin each
// detectable item belongs in and its estimated footprint.
package catalog

import "github.com/buildingco2/tracker/pkg/core"

// Item is one row of the classification table.
type Item struct {
	ID   string   `json:"id"` // detector class label
	Name string   `json:"name"`
	Bin  core.Bin `json:"bin"`
	Note string   `json:"note"`
	CO2e float64  `json:"co2e"` // grams CO2e
}

var items = []Item{
	{ID: "Aluminum-Can", Name: "Aluminum Can", Bin: core.BinRecycling, Note: "Empty and rinse before recycling.", CO2e: 170},
	{ID: "Apple-Core", Name: "Apple Core", Bin: core.BinCompost, Note: "Food scraps belong in compost.", CO2e: 25},
	{ID: "Banana-Peel", Name: "Banana Peel", Bin: core.BinCompost, Note: "Food scraps belong in compost.", CO2e: 30},
	{ID: "Cardboard", Name: "Cardboard", Bin: core.BinRecycling, Note: "Flatten boxes first.", CO2e: 95},
	{ID: "Chip-Bag", Name: "Chip Bag", Bin: core.BinLandfill, Note: "Metallized film is not recyclable.", CO2e: 45},
	{ID: "Coffee-Cup", Name: "Coffee Cup", Bin: core.BinLandfill, Note: "Plastic-lined cups cannot be recycled.", CO2e: 110},
	{ID: "Glass-Bottle", Name: "Glass Bottle", Bin: core.BinRecycling, Note: "Remove the cap.", CO2e: 210},
	{ID: "Napkin", Name: "Napkin", Bin: core.BinCompost, Note: "Soiled paper composts.", CO2e: 10},
	{ID: "Paper", Name: "Paper", Bin: core.BinRecycling, Note: "Keep it dry and clean.", CO2e: 20},
	{ID: "Pizza-Box", Name: "Pizza Box", Bin: core.BinCompost, Note: "Greasy cardboard composts.", CO2e: 75},
	{ID: "Plastic-Bag", Name: "Plastic Bag", Bin: core.BinLandfill, Note: "Film jams sorting machines.", CO2e: 33},
	{ID: "Plastic-Bottle", Name: "Plastic Bottle", Bin: core.BinRecycling, Note: "Empty it and put the cap back on.", CO2e: 82},
	{ID: "Plastic-Utensil", Name: "Plastic Utensil", Bin: core.BinLandfill, Note: "Too small to be sorted.", CO2e: 12},
	{ID: "Styrofoam", Name: "Styrofoam", Bin: core.BinLandfill, Note: "Expanded polystyrene is not accepted.", CO2e: 60},
}

var byID = func() map[string]Item {
	m := make(map[string]Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}()

// Lookup returns the catalog row for a detector class label.
func Lookup(label string) (Item, bool) {
	it, ok := byID[label]
	return it, ok
}

// Items returns a copy of the table in stable order.
func Items() []Item {
	return append([]Item(nil), items...)
}
