// Package graph builds the asset graph of an exchange and enumerates the
// triangular walks that start and end on a given asset.
package graph

import (
	"sort"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Graph is a symmetric adjacency map of assets. An edge means a swap between
// the two assets is possible; the pair stored on the edge is the listed
// market that produced it. A Graph is immutable once built.
type Graph struct {
	edges     map[domain.Asset]map[domain.Asset]domain.TradingPair
	neighbors map[domain.Asset][]domain.Asset
	skipped   int
}

// Build constructs a Graph from market metadata. Inactive markets and
// symbols that do not split into two distinct assets are skipped. When both
// orientations of a pair are listed, the first one seen wins.
func Build(markets []domain.Market) *Graph {
	g := &Graph{
		edges:     make(map[domain.Asset]map[domain.Asset]domain.TradingPair),
		neighbors: make(map[domain.Asset][]domain.Asset),
	}

	for _, m := range markets {
		if !m.Active {
			continue
		}
		pair, err := domain.ParsePair(m.Symbol)
		if err != nil {
			g.skipped++
			continue
		}
		g.link(pair.Base, pair.Quote, pair)
		g.link(pair.Quote, pair.Base, pair)
	}

	for a, adj := range g.edges {
		list := make([]domain.Asset, 0, len(adj))
		for b := range adj {
			list = append(list, b)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		g.neighbors[a] = list
	}
	return g
}

func (g *Graph) link(from, to domain.Asset, pair domain.TradingPair) {
	adj, ok := g.edges[from]
	if !ok {
		adj = make(map[domain.Asset]domain.TradingPair)
		g.edges[from] = adj
	}
	if _, exists := adj[to]; !exists {
		adj[to] = pair
	}
}

// Neighbors returns the assets a can be swapped for, sorted by ticker.
func (g *Graph) Neighbors(a domain.Asset) []domain.Asset {
	return g.neighbors[a]
}

// HasEdge reports whether a and b are directly tradable.
func (g *Graph) HasEdge(a, b domain.Asset) bool {
	_, ok := g.edges[a][b]
	return ok
}

// Pair returns the listed market joining a and b.
func (g *Graph) Pair(a, b domain.Asset) (domain.TradingPair, bool) {
	p, ok := g.edges[a][b]
	return p, ok
}

// Assets returns every asset in the graph, sorted.
func (g *Graph) Assets() []domain.Asset {
	out := make([]domain.Asset, 0, len(g.neighbors))
	for a := range g.neighbors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of assets.
func (g *Graph) Len() int { return len(g.neighbors) }

// Skipped returns how many active markets had malformed symbols.
func (g *Graph) Skipped() int { return g.skipped }

// FindTriangles enumerates every closed walk start -> mid -> end -> start.
// Rotations and reversals are kept as distinct triangles. When whitelist is
// non-empty, a walk is kept only if one of its assets is whitelisted.
func (g *Graph) FindTriangles(start domain.Asset, whitelist map[domain.Asset]bool) []domain.Triangle {
	var out []domain.Triangle
	for _, mid := range g.neighbors[start] {
		for _, end := range g.neighbors[mid] {
			if end == mid || end == start {
				continue
			}
			c, ok := g.edges[end][start]
			if !ok {
				continue
			}
			if len(whitelist) > 0 && !whitelist[start] && !whitelist[mid] && !whitelist[end] {
				continue
			}
			out = append(out, domain.Triangle{
				Start: start,
				Mid:   mid,
				End:   end,
				A:     g.edges[start][mid],
				B:     g.edges[mid][end],
				C:     c,
			})
		}
	}
	return out
}

// FilterMarkets drops markets that touch a blacklisted asset.
func FilterMarkets(markets []domain.Market, blacklist map[domain.Asset]bool) []domain.Market {
	if len(blacklist) == 0 {
		return markets
	}
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		pair, err := domain.ParsePair(m.Symbol)
		if err == nil && (blacklist[pair.Base] || blacklist[pair.Quote]) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// UniquePairs returns every distinct pair referenced by the triangles, in
// first-seen order.
func UniquePairs(triangles []domain.Triangle) []domain.TradingPair {
	seen := make(map[domain.TradingPair]bool)
	var out []domain.TradingPair
	for _, t := range triangles {
		for _, p := range t.Pairs() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// AssetSet converts a list of tickers into a lookup set.
func AssetSet(assets []domain.Asset) map[domain.Asset]bool {
	set := make(map[domain.Asset]bool, len(assets))
	for _, a := range assets {
		set[a] = true
	}
	return set
}
