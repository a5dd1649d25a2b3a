package memory

import (
	"github.com/duetlabs/duet/entity"
)

type (
	// Scored holds a stored exchange with its similarity to a query (0~1).
	Scored struct {
		Exchange *entity.Exchange `json:"exchange"`
		Score    float64          `json:"score"`
	}

	retrieveOptions struct {
		excludeSeqs map[uint64]struct{}
	}

	RetrieveOption func(*retrieveOptions)
)

// WithoutSeq excludes an exchange from a retrieval result set. The turn loop
// passes the sequence number of the exchange the query text originated from,
// so an exchange is never "relevant" to itself.
func WithoutSeq(seqs ...uint64) RetrieveOption {
	return func(o *retrieveOptions) {
		if o.excludeSeqs == nil {
			o.excludeSeqs = make(map[uint64]struct{}, len(seqs))
		}
		for _, s := range seqs {
			o.excludeSeqs[s] = struct{}{}
		}
	}
}

func applyRetrieveOptions(opts []RetrieveOption) retrieveOptions {
	var o retrieveOptions
	for _, f := range opts {
		f(&o)
	}
	return o
}
