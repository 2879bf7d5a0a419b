package vespa

import (
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Schema returns the embedding.sd document definition the adapter expects,
// with the tensor sized to dims. The closeness profile ranks by angular
// distance; final scores are recomputed as cosine distance by the adapter.
func Schema(dims int) (string, error) {
	if dims <= 0 {
		return "", fmt.Errorf("%w: collection dimension must be positive", domain.ErrConfiguration)
	}
	return fmt.Sprintf(`schema %[1]s {
    document %[1]s {
        field record_id type string {
            indexing: summary | attribute
        }
        field session_id type string {
            indexing: summary | attribute
            attribute: fast-search
            match: exact
        }
        field path type string {
            indexing: summary | attribute
            match: exact
        }
        field title type string {
            indexing: summary
        }
        field ext type string {
            indexing: summary | attribute
        }
        field page type int {
            indexing: summary | attribute
        }
        field chunk_index type int {
            indexing: summary | attribute
        }
        field content type string {
            indexing: summary
        }
        field embedding type tensor<float>(x[%[2]d]) {
            indexing: summary | attribute | index
            attribute {
                distance-metric: angular
            }
            index {
                hnsw {
                    max-links-per-node: 16
                    neighbors-to-explore-at-insert: 200
                }
            }
        }
    }

    rank-profile closeness {
        inputs {
            query(q) tensor<float>(x[%[2]d])
        }
        first-phase {
            expression: closeness(field, embedding)
        }
    }
}
`, docType, dims), nil
}
