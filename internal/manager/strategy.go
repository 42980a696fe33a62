package manager

import (
	"sort"

	"github.com/contaflow/docextract/internal/classifier"
	"github.com/contaflow/docextract/internal/provider"
)

// Strategy is the concrete processing plan for one document: a primary
// provider and a ranked fallback chain, under a classifier decision.
type Strategy struct {
	Decision  classifier.Decision
	Primary   provider.Provider
	Fallbacks []provider.Provider
}

// Chain returns the primary followed by the fallbacks.
func (s Strategy) Chain() []provider.Provider {
	return append([]provider.Provider{s.Primary}, s.Fallbacks...)
}

// buildStrategy ranks the registered providers that support the document's
// mime type by their self-reported accuracy for it. When the decision asks
// for vision, vision-capable providers are moved ahead of the rest.
func buildStrategy(reg *provider.Registry, decision classifier.Decision, mimeType string) (Strategy, error) {
	var candidates []provider.Provider
	for _, p := range reg.All() {
		if p.Capabilities().Supports(mimeType) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Strategy{}, ErrNoProviders
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i].Capabilities(), candidates[j].Capabilities()
		if decision.UseVision && (ci.Kind == "vision") != (cj.Kind == "vision") {
			return ci.Kind == "vision"
		}
		if ci.AccuracyFor(mimeType) != cj.AccuracyFor(mimeType) {
			return ci.AccuracyFor(mimeType) > cj.AccuracyFor(mimeType)
		}
		return ci.Name < cj.Name
	})

	return Strategy{
		Decision:  decision,
		Primary:   candidates[0],
		Fallbacks: candidates[1:],
	}, nil
}
