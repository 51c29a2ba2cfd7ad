package escrow

import (
	"fmt"
	"math/big"

	"gitlab.com/freelanced/escrowd/internal/interfaces"
	"gitlab.com/freelanced/escrowd/internal/lib"
)

// MilestoneLedger applies milestone state transitions and the fund movement
// they imply. Callers (the Service facade) hold the project lock and have
// already passed the authorization guard; the ledger only deals in record
// consistency.
//
// Ordering discipline: every paying transition flips the milestone out of
// its payable state and updates the aggregates BEFORE the vault disburses,
// so a re-entrant call from a recipient can never observe a payable
// milestone that is already being paid. A vault failure afterwards is an
// invariant violation; the mutation is rolled back and ErrInternal is
// returned so no partial state survives.
type MilestoneLedger struct {
	vault *Vault
	fees  FeePolicy
	log   interfaces.ILogger
}

func NewMilestoneLedger(vault *Vault, fees FeePolicy, log interfaces.ILogger) *MilestoneLedger {
	return &MilestoneLedger{
		vault: vault,
		fees:  fees,
		log:   log,
	}
}

// Add appends a milestone while the project is still unfunded
func (l *MilestoneLedger) Add(p *Project, description string, amount *big.Int) (*Milestone, error) {
	if description == "" {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("empty milestone description"))
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("milestone amount must be positive"))
	}

	m := &Milestone{
		Index:       len(p.Milestones),
		Description: description,
		Amount:      new(big.Int).Set(amount),
		Status:      MilestoneStatusPending,
	}
	p.Milestones = append(p.Milestones, m)
	p.TotalAmount.Add(p.TotalAmount, m.Amount)

	l.log.Debugf("milestone %d added to project %d, amount %s", m.Index, p.id, m.Amount.String())
	return m, nil
}

// Submit records the freelancer's deliverable proof
func (l *MilestoneLedger) Submit(p *Project, m *Milestone, deliverableHash string) error {
	if deliverableHash == "" {
		return lib.WrapError(ErrInvalidArgument, fmt.Errorf("empty deliverable hash"))
	}

	m.Status = MilestoneStatusSubmitted
	m.DeliverableHash = deliverableHash

	l.log.Debugf("milestone %d of project %d submitted, proof %s", m.Index, p.id, deliverableHash)
	return nil
}

// Approve pays the milestone out to the freelancer. Returns true if this
// settled the last open milestone and the project is now completed.
func (l *MilestoneLedger) Approve(p *Project, m *Milestone) (completed bool, err error) {
	prevStatus := m.Status
	prevProjectStatus := p.Status

	m.Status = MilestoneStatusPaid
	p.PaidAmount.Add(p.PaidAmount, m.Amount)
	if p.settled() {
		p.Status = ProjectStatusCompleted
	}

	err = l.vault.Release(p.id, p.Freelancer, m.Amount, TransferRelease)
	if err != nil {
		m.Status = prevStatus
		p.PaidAmount.Sub(p.PaidAmount, m.Amount)
		p.Status = prevProjectStatus
		return false, err
	}

	if p.Status == ProjectStatusCompleted {
		l.settleFee(p)
	}
	return p.Status == ProjectStatusCompleted, nil
}

// Dispute freezes the whole project until the arbiter rules
func (l *MilestoneLedger) Dispute(p *Project, m *Milestone) error {
	m.Status = MilestoneStatusDisputed
	p.Status = ProjectStatusDisputed
	return nil
}

// Resolve settles a disputed milestone by the arbiter's ruling. Approving
// pays the freelancer; rejecting refunds the client and closes the milestone
// with the terminal Refunded marker. Either way the arbiter earns the fee
// share for this milestone and the project leaves Disputed.
func (l *MilestoneLedger) Resolve(p *Project, m *Milestone, approveFreelancer bool) (completed bool, err error) {
	prevStatus := m.Status
	prevProjectStatus := p.Status

	feeShare := l.fees.Fee(m.Amount)

	if approveFreelancer {
		m.Status = MilestoneStatusPaid
		p.PaidAmount.Add(p.PaidAmount, m.Amount)
	} else {
		m.Status = MilestoneStatusRefunded
	}
	if p.settled() {
		p.Status = ProjectStatusCompleted
	} else {
		p.Status = ProjectStatusInProgress
	}

	rollback := func() {
		m.Status = prevStatus
		p.Status = prevProjectStatus
		if approveFreelancer {
			p.PaidAmount.Sub(p.PaidAmount, m.Amount)
		}
	}

	if approveFreelancer {
		err = l.vault.Release(p.id, p.Freelancer, m.Amount, TransferRelease)
	} else {
		err = l.vault.Refund(p.id, p.Client, m.Amount)
	}
	if err != nil {
		rollback()
		return false, err
	}

	// the milestone's amount already left the vault, so the fee reserve
	// always covers its share; a failure here is fatal by definition
	err = l.vault.Release(p.id, p.Arbiter, feeShare, TransferFee)
	if err != nil {
		return false, err
	}

	if p.Status == ProjectStatusCompleted {
		l.settleFee(p)
	}
	return p.Status == ProjectStatusCompleted, nil
}

// settleFee drains the unspent fee reserve to the arbiter once every
// milestone is terminal, leaving the project's vault balance at zero
func (l *MilestoneLedger) settleFee(p *Project) {
	remainder := l.vault.Locked(p.id)
	if remainder.Sign() == 0 {
		return
	}
	err := l.vault.Release(p.id, p.Arbiter, remainder, TransferFee)
	if err != nil {
		// completion itself stands, the stranded remainder is a bug to surface
		l.log.Errorf("fee settlement failed for project %d: %s", p.id, err)
	}
}
