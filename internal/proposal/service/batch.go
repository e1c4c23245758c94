package service

import (
	"context"
	"strings"

	"dealroom/internal/identity"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

// MaxBatchSize bounds how many proposals one batch decision may name.
const MaxBatchSize = 100

// BatchItem names one proposal and the version the administrator decided on.
type BatchItem struct {
	ProposalID id.ProposalID `json:"proposal_id"`
	Version    int64         `json:"version"`
}

type BatchFailure struct {
	ProposalID id.ProposalID `json:"proposal_id"`
	Code       dErrors.Code  `json:"code"`
	Message    string        `json:"message"`
}

// BatchResult reports each item separately. A failed item never undoes the
// ones that succeeded.
type BatchResult struct {
	Total     int             `json:"total"`
	Succeeded []id.ProposalID `json:"succeeded"`
	Failed    []BatchFailure  `json:"failed"`
}

// BatchDecide applies the same decision to every item, each in its own unit of
// work. Problems with the request as a whole fail before any item is touched.
func (s *Service) BatchDecide(ctx context.Context, who identity.Identity, items []BatchItem, approve bool, comment string) (*BatchResult, error) {
	if err := identity.Authorize(who, identity.OpProposalDecide, identity.RelationNone, ""); err != nil {
		return nil, err
	}
	if len(items) == 0 || len(items) > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation, "batch must name between 1 and 100 proposals")
	}
	if !approve && strings.TrimSpace(comment) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
	}
	seen := make(map[id.ProposalID]bool, len(items))
	for _, it := range items {
		if seen[it.ProposalID] {
			return nil, dErrors.New(dErrors.CodeValidation, "proposal named twice in batch").WithEntity(it.ProposalID.String())
		}
		seen[it.ProposalID] = true
	}

	out := &BatchResult{Total: len(items), Succeeded: []id.ProposalID{}, Failed: []BatchFailure{}}
	for _, it := range items {
		if _, err := s.Decide(ctx, who, it.ProposalID, approve, comment, it.Version); err != nil {
			out.Failed = append(out.Failed, batchFailure(it.ProposalID, err))
			continue
		}
		out.Succeeded = append(out.Succeeded, it.ProposalID)
	}
	s.logger.InfoContext(ctx, "batch decision applied",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", who.ID,
		"approve", approve,
		"total", out.Total,
		"failed", len(out.Failed),
	)
	return out, nil
}

func batchFailure(proposalID id.ProposalID, err error) BatchFailure {
	f := BatchFailure{ProposalID: proposalID, Code: dErrors.CodeOf(err), Message: "proposal operation failed"}
	if de, ok := dErrors.As(err); ok {
		f.Message = de.Message
	}
	return f
}
