package provision

import "sort"

// DefaultPrice applies to sizes missing from the price table.
const DefaultPrice int64 = 70000

var prices = map[string]int64{
	"s-1vcpu-1gb": 70000,
	"s-1vcpu-2gb": 140000,
	"s-2vcpu-2gb": 210000,
	"s-2vcpu-4gb": 280000,
	"s-4vcpu-8gb": 560000,
}

func Price(size string) int64 {
	if p, ok := prices[size]; ok {
		return p
	}
	return DefaultPrice
}

type PriceEntry struct {
	Size  string `json:"size"`
	Price int64  `json:"price"`
}

// PriceList returns the table cheapest first.
func PriceList() []PriceEntry {
	out := make([]PriceEntry, 0, len(prices))
	for size, p := range prices {
		out = append(out, PriceEntry{Size: size, Price: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].Size < out[j].Size
		}
		return out[i].Price < out[j].Price
	})
	return out
}
