package consensus

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Options tunes the merge behavior. The defaults are heuristic constants
// carried over from production tuning; they are deliberately configurable
// rather than assumed optimal.
type Options struct {
	// MinConfidence is the similarity score a line item must reach against a
	// group's representative to join that group.
	MinConfidence float64 `yaml:"min_confidence"`

	// MinAgreement is the fraction of input records that must contribute to
	// a line-item group for it to survive the merge.
	MinAgreement float64 `yaml:"min_agreement"`

	// Similarity weights the line-item similarity components.
	Similarity SimilarityWeights `yaml:"similarity_weights"`
}

// SimilarityWeights splits line-item similarity across its components. The
// four weights should sum to 1.
type SimilarityWeights struct {
	Description float64 `yaml:"description"`
	Total       float64 `yaml:"total"`
	Quantity    float64 `yaml:"quantity"`
	VATAmount   float64 `yaml:"vat_amount"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MinConfidence: 0.7,
		MinAgreement:  0.5,
		Similarity: SimilarityWeights{
			Description: 0.4,
			Total:       0.3,
			Quantity:    0.2,
			VATAmount:   0.1,
		},
	}
}

// LoadOptions reads merge options from a YAML file. Zero-valued entries fall
// back to the defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, eris.Wrapf(err, "consensus: read options %s", path)
	}

	// The YAML has a top-level "consensus" key
	var wrapper struct {
		Consensus Options `yaml:"consensus"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Options{}, eris.Wrap(err, "consensus: parse options")
	}

	opts := wrapper.Consensus
	def := DefaultOptions()
	if opts.MinConfidence == 0 {
		opts.MinConfidence = def.MinConfidence
	}
	if opts.MinAgreement == 0 {
		opts.MinAgreement = def.MinAgreement
	}
	zero := SimilarityWeights{}
	if opts.Similarity == zero {
		opts.Similarity = def.Similarity
	}
	return opts, nil
}
