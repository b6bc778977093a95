package detect

import "strings"

// EncodingVote is the tally for one candidate name.
type EncodingVote struct {
	Name   string
	Count  int
	Weight float64
}

func (v EncodingVote) Score() float64 {
	return float64(v.Count) * v.Weight
}

// FamilyWeight favours the Unicode families over single-byte guesses and
// discounts plain ASCII, which any 7-bit window satisfies.
func FamilyWeight(name string) float64 {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "UTF-32"):
		return 2.0
	case strings.HasPrefix(upper, "UTF-16"):
		return 1.8
	case strings.HasPrefix(upper, "UTF-8"):
		return 1.5
	case strings.HasPrefix(upper, "UTF-7"):
		return 1.3
	case upper == "ASCII" || upper == "US-ASCII":
		return 0.2
	default:
		return 1.0
	}
}

// Tally groups candidates by name in order of first appearance.
func Tally(candidates []string) []EncodingVote {
	var votes []EncodingVote
	index := make(map[string]int)
	for _, name := range candidates {
		if i, ok := index[name]; ok {
			votes[i].Count++
			continue
		}
		index[name] = len(votes)
		votes = append(votes, EncodingVote{Name: name, Count: 1, Weight: FamilyWeight(name)})
	}
	return votes
}

// Vote returns the candidate with the highest weighted score. Ties keep the
// group seen first.
func Vote(candidates []string) (string, bool) {
	votes := Tally(candidates)
	if len(votes) == 0 {
		return "", false
	}

	best := votes[0]
	for _, v := range votes[1:] {
		if v.Score() > best.Score() {
			best = v
		}
	}
	return best.Name, true
}
