// Package document stores attachment bytes outside the proposal aggregate.
// Proposals keep only the file reference returned by Store.
package document

import (
	"context"
	"fmt"

	id "dealroom/pkg/domain"
)

// Store is the DocumentStore contract. Put returns an opaque file reference that
// Get and Delete accept.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (fileRef string, err error)
	Get(ctx context.Context, fileRef string) ([]byte, error)
	Delete(ctx context.Context, fileRef string) error
}

// Key lays attachments out per proposal.
func Key(proposalID id.ProposalID, docID id.DocumentID) string {
	return fmt.Sprintf("proposals/%s/%s", proposalID, docID)
}
