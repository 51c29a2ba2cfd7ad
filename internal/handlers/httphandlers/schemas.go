package httphandlers

import (
	"gitlab.com/freelanced/escrowd/internal/escrow"
)

type CreateProjectRequest struct {
	From        string `json:"from" binding:"required"`
	Freelancer  string `json:"freelancer" binding:"required"`
	Arbiter     string `json:"arbiter" binding:"required"`
	Description string `json:"description" binding:"required"`
	Deadline    int64  `json:"deadline" binding:"required"` // unix seconds
}

type AddMilestoneRequest struct {
	From        string `json:"from" binding:"required"`
	Description string `json:"description" binding:"required"`
	Amount      string `json:"amount" binding:"required"` // decimal, smallest unit
}

type StartProjectRequest struct {
	From  string `json:"from" binding:"required"`
	Funds string `json:"funds" binding:"required"` // must equal total + fee exactly
}

type SubmitMilestoneRequest struct {
	From            string `json:"from" binding:"required"`
	DeliverableHash string `json:"deliverableHash" binding:"required"`
}

type FromRequest struct {
	From string `json:"from" binding:"required"`
}

type ResolveDisputeRequest struct {
	From              string `json:"from" binding:"required"`
	ApproveFreelancer *bool  `json:"approveFreelancer" binding:"required"`
}

type Project struct {
	ID          uint64      `json:"id"`
	Client      string      `json:"client"`
	Freelancer  string      `json:"freelancer"`
	Arbiter     string      `json:"arbiter"`
	Description string      `json:"description"`
	Deadline    int64       `json:"deadline"`
	CreatedAt   int64       `json:"createdAt"`
	TotalAmount string      `json:"totalAmount"`
	PaidAmount  string      `json:"paidAmount"`
	ArbiterFee  string      `json:"arbiterFee,omitempty"`
	Status      string      `json:"status"`
	Milestones  []Milestone `json:"milestones"`
}

type Milestone struct {
	Index           int    `json:"index"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
	DeliverableHash string `json:"deliverableHash,omitempty"`
}

type ProjectsResponse struct {
	Count    uint64    `json:"count"`
	Projects []Project `json:"projects"`
}

type VaultResponse struct {
	ProjectID     uint64         `json:"projectId"`
	LockedBalance string         `json:"lockedBalance"`
	Transfers     []TransferItem `json:"transfers"`
}

type TransferItem struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Kind      string `json:"kind"`
	At        string `json:"at"`
}

type CreatedResponse struct {
	ProjectID uint64 `json:"projectId"`
}

type IndexResponse struct {
	Index int `json:"index"`
}

func mapProject(snap escrow.ProjectSnapshot) Project {
	p := Project{
		ID:          snap.ID,
		Client:      snap.Client.Hex(),
		Freelancer:  snap.Freelancer.Hex(),
		Arbiter:     snap.Arbiter.Hex(),
		Description: snap.Description,
		Deadline:    snap.Deadline.Unix(),
		CreatedAt:   snap.CreatedAt.Unix(),
		TotalAmount: snap.TotalAmount.String(),
		PaidAmount:  snap.PaidAmount.String(),
		Status:      snap.Status.String(),
		Milestones:  make([]Milestone, len(snap.Milestones)),
	}
	if snap.ArbiterFee != nil {
		p.ArbiterFee = snap.ArbiterFee.String()
	}
	for i, m := range snap.Milestones {
		p.Milestones[i] = mapMilestone(m)
	}
	return p
}

func mapMilestone(m escrow.MilestoneSnapshot) Milestone {
	return Milestone{
		Index:           m.Index,
		Description:     m.Description,
		Amount:          m.Amount.String(),
		Status:          m.Status.String(),
		DeliverableHash: m.DeliverableHash,
	}
}

func mapTransfers(transfers []escrow.Transfer) []TransferItem {
	out := make([]TransferItem, len(transfers))
	for i, t := range transfers {
		out[i] = TransferItem{
			Recipient: t.Recipient.Hex(),
			Amount:    t.Amount.String(),
			Kind:      string(t.Kind),
			At:        t.At.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return out
}
