package economy

// Tier is one rank band; Min is its inclusive lower wealth bound.
type Tier struct {
	Name string
	Min  int64
}

// RankTable classifies total wealth into a display tier. Tiers are ordered by
// ascending Min; the first tier is the floor for everyone.
type RankTable []Tier

// NewRankTable builds the standard four-tier table from configured bounds.
func NewRankTable(notable, elite, transcendent int64) RankTable {
	return RankTable{
		{Name: "common", Min: 0},
		{Name: "notable", Min: notable},
		{Name: "elite", Min: elite},
		{Name: "transcendent", Min: transcendent},
	}
}

// Rank maps a wealth total to its tier name.
func (t RankTable) Rank(total int64) string {
	if len(t) == 0 {
		return ""
	}
	name := t[0].Name
	for _, tier := range t {
		if total >= tier.Min {
			name = tier.Name
		}
	}
	return name
}
