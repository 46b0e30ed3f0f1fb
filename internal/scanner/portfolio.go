package scanner

import (
	"sort"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// ChooseStartingAsset picks the asset with the largest balance among those
// holding at least threshold and not blacklisted. Equal balances are broken
// by ticker so the choice is deterministic. eligible lists every qualifying
// asset, largest balance first.
func ChooseStartingAsset(balances domain.Balances, threshold float64, blacklist map[domain.Asset]bool) (start domain.Asset, eligible []domain.Asset, err error) {
	for a, amount := range balances {
		if blacklist[a] || amount < threshold || amount <= 0 {
			continue
		}
		eligible = append(eligible, a)
	}
	if len(eligible) == 0 {
		return "", nil, domain.ErrNoStartingAsset
	}
	sort.Slice(eligible, func(i, j int) bool {
		bi, bj := balances[eligible[i]], balances[eligible[j]]
		if bi != bj {
			return bi > bj
		}
		return eligible[i] < eligible[j]
	})
	return eligible[0], eligible, nil
}
