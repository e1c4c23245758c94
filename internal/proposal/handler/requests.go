package handler

import (
	"dealroom/internal/audit"
	"dealroom/internal/proposal/models"
	"dealroom/internal/proposal/service"
	dErrors "dealroom/pkg/domain-errors"
)

type VersionRequest struct {
	Version int64 `json:"version"`
}

func (r *VersionRequest) Validate() error {
	if r.Version <= 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	return nil
}

// AutoSaveRequest replaces whichever field sets are present. An omitted set
// is left alone; an empty object clears it.
type AutoSaveRequest struct {
	PublicFields       models.Fields `json:"public_fields"`
	ConfidentialFields models.Fields `json:"confidential_fields"`
	Version            int64         `json:"version"`
}

func (r *AutoSaveRequest) Validate() error {
	if r.Version <= 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	if r.PublicFields == nil && r.ConfidentialFields == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to save")
	}
	return nil
}

type DecisionRequest struct {
	Approve *bool  `json:"approve"`
	Comment string `json:"comment"`
	Version int64  `json:"version"`
}

func (r *DecisionRequest) Validate() error {
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	if r.Version <= 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	return nil
}

type RevertRequest struct {
	Target  string `json:"target"`
	Version int64  `json:"version"`
}

func (r *RevertRequest) Validate() error {
	if r.Target == "" {
		return dErrors.New(dErrors.CodeValidation, "target is required")
	}
	if r.Version <= 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	return nil
}

type AttachResponse struct {
	Document *models.Document `json:"document"`
	Version  int64            `json:"version"`
}

type HistoryResponse struct {
	Entries []*audit.Entry `json:"entries"`
}

type WithdrawRequest struct {
	Reason  string `json:"reason"`
	Version int64  `json:"version"`
}

func (r *WithdrawRequest) Validate() error {
	if r.Version <= 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	return nil
}

// BatchDecisionRequest applies one decision to every listed proposal.
type BatchDecisionRequest struct {
	Items   []service.BatchItem `json:"items"`
	Approve *bool               `json:"approve"`
	Comment string              `json:"comment"`
}

func (r *BatchDecisionRequest) Validate() error {
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "items are required")
	}
	for _, it := range r.Items {
		if it.Version <= 0 {
			return dErrors.New(dErrors.CodeValidation, "version must be a positive integer").WithEntity(it.ProposalID.String())
		}
	}
	return nil
}

type QueueResponse struct {
	Proposals []*models.View `json:"proposals"`
}
