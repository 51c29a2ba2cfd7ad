package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/freelanced/escrowd/internal/lib"
)

type ProjectStatus uint8

const (
	ProjectStatusCreated ProjectStatus = iota
	ProjectStatusInProgress
	ProjectStatusCompleted
	ProjectStatusDisputed
	ProjectStatusCancelled
	ProjectStatusRefunded
)

func (s ProjectStatus) String() string {
	switch s {
	case ProjectStatusCreated:
		return "Created"
	case ProjectStatusInProgress:
		return "InProgress"
	case ProjectStatusCompleted:
		return "Completed"
	case ProjectStatusDisputed:
		return "Disputed"
	case ProjectStatusCancelled:
		return "Cancelled"
	case ProjectStatusRefunded:
		return "Refunded"
	}
	return "Unknown"
}

type MilestoneStatus uint8

const (
	MilestoneStatusPending MilestoneStatus = iota
	MilestoneStatusSubmitted
	MilestoneStatusDisputed
	MilestoneStatusPaid
	MilestoneStatusRefunded
)

func (s MilestoneStatus) String() string {
	switch s {
	case MilestoneStatusPending:
		return "Pending"
	case MilestoneStatusSubmitted:
		return "Submitted"
	case MilestoneStatusDisputed:
		return "Disputed"
	case MilestoneStatusPaid:
		return "Paid"
	case MilestoneStatusRefunded:
		return "Refunded"
	}
	return "Unknown"
}

// isTerminal reports whether no further funds can move for this milestone
func (s MilestoneStatus) isTerminal() bool {
	return s == MilestoneStatusPaid || s == MilestoneStatusRefunded
}

type Milestone struct {
	Index           int
	Description     string
	Amount          *big.Int
	Status          MilestoneStatus
	DeliverableHash string
}

// Project is the escrow record for one engagement. All fields except id are
// guarded by mutex; every mutation goes through Service which holds the lock
// for the whole operation.
type Project struct {
	id uint64

	Client     common.Address
	Freelancer common.Address
	Arbiter    common.Address

	Description string
	Deadline    time.Time
	CreatedAt   time.Time

	TotalAmount *big.Int
	PaidAmount  *big.Int
	ArbiterFee  *big.Int // fixed at funding time, nil before

	Status     ProjectStatus
	Milestones []*Milestone

	mutex lib.Mutex
}

func (p *Project) ID() uint64 {
	return p.id
}

func (p *Project) milestone(index int) (*Milestone, bool) {
	if index < 0 || index >= len(p.Milestones) {
		return nil, false
	}
	return p.Milestones[index], true
}

// settled reports whether every milestone reached a terminal status
func (p *Project) settled() bool {
	if len(p.Milestones) == 0 {
		return false
	}
	for _, m := range p.Milestones {
		if !m.Status.isTerminal() {
			return false
		}
	}
	return true
}

// ProjectSnapshot is the read-only view returned to callers
type ProjectSnapshot struct {
	ID          uint64
	Client      common.Address
	Freelancer  common.Address
	Arbiter     common.Address
	Description string
	Deadline    time.Time
	CreatedAt   time.Time
	TotalAmount *big.Int
	PaidAmount  *big.Int
	ArbiterFee  *big.Int
	Status      ProjectStatus
	Milestones  []MilestoneSnapshot
}

type MilestoneSnapshot struct {
	Index           int
	Description     string
	Amount          *big.Int
	Status          MilestoneStatus
	DeliverableHash string
}

// snapshot copies the record; the caller must hold the project lock
func (p *Project) snapshot() ProjectSnapshot {
	s := ProjectSnapshot{
		ID:          p.id,
		Client:      p.Client,
		Freelancer:  p.Freelancer,
		Arbiter:     p.Arbiter,
		Description: p.Description,
		Deadline:    p.Deadline,
		CreatedAt:   p.CreatedAt,
		TotalAmount: new(big.Int).Set(p.TotalAmount),
		PaidAmount:  new(big.Int).Set(p.PaidAmount),
		Status:      p.Status,
		Milestones:  make([]MilestoneSnapshot, len(p.Milestones)),
	}
	if p.ArbiterFee != nil {
		s.ArbiterFee = new(big.Int).Set(p.ArbiterFee)
	}
	for i, m := range p.Milestones {
		s.Milestones[i] = MilestoneSnapshot{
			Index:           m.Index,
			Description:     m.Description,
			Amount:          new(big.Int).Set(m.Amount),
			Status:          m.Status,
			DeliverableHash: m.DeliverableHash,
		}
	}
	return s
}
