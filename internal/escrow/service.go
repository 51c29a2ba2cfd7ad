package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/freelanced/escrowd/internal/eventbus"
	"gitlab.com/freelanced/escrowd/internal/interfaces"
	"gitlab.com/freelanced/escrowd/internal/lib"
	"gitlab.com/freelanced/escrowd/internal/metrics"
)

// Service is the only entry point external collaborators use. It resolves the
// project, serializes the operation on the per-project lock, evaluates the
// authorization guard and orchestrates registry, ledger and vault. Every
// operation is atomic: it fully applies or fails with no state change.
type Service struct {
	registry *ProjectRegistry
	ledger   *MilestoneLedger
	vault    *Vault
	fees     FeePolicy
	bus      *eventbus.EventBus

	lockTimeout time.Duration
	log         interfaces.ILogger
}

func NewService(registry *ProjectRegistry, ledger *MilestoneLedger, vault *Vault, fees FeePolicy, bus *eventbus.EventBus, lockTimeout time.Duration, log interfaces.ILogger) *Service {
	return &Service{
		registry:    registry,
		ledger:      ledger,
		vault:       vault,
		fees:        fees,
		bus:         bus,
		lockTimeout: lockTimeout,
		log:         log,
	}
}

//
// Commands
//

func (s *Service) CreateProject(ctx context.Context, client, freelancer, arbiter common.Address, description string, deadline time.Time) (id uint64, err error) {
	start := time.Now()
	defer func() { s.observe("createProject", start, err) }()

	p, err := s.registry.Create(client, freelancer, arbiter, description, deadline)
	if err != nil {
		return 0, err
	}

	metrics.ProjectsTotal.Set(float64(s.registry.Count()))
	s.publish(ProjectCreatedEvent{
		ProjectID:  p.ID(),
		Client:     client,
		Freelancer: freelancer,
		Arbiter:    arbiter,
	})
	return p.ID(), nil
}

func (s *Service) AddMilestone(ctx context.Context, projectID uint64, caller common.Address, description string, amount *big.Int) (index int, err error) {
	start := time.Now()
	defer func() { s.observe(string(opAddMilestone), start, err) }()

	err = s.withProject(ctx, projectID, func(p *Project) error {
		if err := authorize(opAddMilestone, p, caller, nil); err != nil {
			return err
		}
		m, err := s.ledger.Add(p, description, amount)
		if err != nil {
			return err
		}
		index = m.Index
		s.publish(MilestoneAddedEvent{ProjectID: projectID, Index: m.Index})
		return nil
	})
	return index, err
}

func (s *Service) StartProject(ctx context.Context, projectID uint64, caller common.Address, fundsSent *big.Int) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opStartProject), start, err) }()

	return s.withProject(ctx, projectID, func(p *Project) error {
		if err := authorize(opStartProject, p, caller, nil); err != nil {
			return err
		}
		if len(p.Milestones) == 0 {
			return lib.WrapError(ErrInvalidTransition, fmt.Errorf("project %d has no milestones", projectID))
		}
		if fundsSent == nil {
			return lib.WrapError(ErrInvalidArgument, fmt.Errorf("no funds sent"))
		}

		required := s.fees.FundingRequired(p.TotalAmount)
		if fundsSent.Cmp(required) != 0 {
			return lib.WrapError(ErrFundingMismatch,
				fmt.Errorf("project %d requires exactly %s, got %s", projectID, required.String(), fundsSent.String()))
		}

		if err := s.vault.Lock(projectID, required); err != nil {
			return err
		}
		p.ArbiterFee = s.fees.Fee(p.TotalAmount)
		p.Status = ProjectStatusInProgress

		metrics.SetValueLocked(s.vault.TotalLocked())
		s.publish(ProjectStartedEvent{ProjectID: projectID})
		return nil
	})
}

func (s *Service) CancelProject(ctx context.Context, projectID uint64, caller common.Address) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opCancelProject), start, err) }()

	return s.withProject(ctx, projectID, func(p *Project) error {
		if err := authorize(opCancelProject, p, caller, nil); err != nil {
			return err
		}
		// nothing is funded while Created, no vault movement needed
		p.Status = ProjectStatusCancelled
		s.publish(ProjectCancelledEvent{ProjectID: projectID})
		return nil
	})
}

func (s *Service) SubmitMilestone(ctx context.Context, projectID uint64, index int, caller common.Address, deliverableHash string) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opSubmitMilestone), start, err) }()

	return s.withMilestone(ctx, projectID, index, func(p *Project, m *Milestone) error {
		if err := authorize(opSubmitMilestone, p, caller, m); err != nil {
			return err
		}
		if err := s.ledger.Submit(p, m, deliverableHash); err != nil {
			return err
		}
		s.publish(MilestoneSubmittedEvent{ProjectID: projectID, Index: index, DeliverableHash: deliverableHash})
		return nil
	})
}

func (s *Service) ApproveMilestone(ctx context.Context, projectID uint64, index int, caller common.Address) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opApproveMilestone), start, err) }()

	return s.withMilestone(ctx, projectID, index, func(p *Project, m *Milestone) error {
		if err := authorize(opApproveMilestone, p, caller, m); err != nil {
			return err
		}
		completed, err := s.ledger.Approve(p, m)
		if err != nil {
			return err
		}

		metrics.SetValueLocked(s.vault.TotalLocked())
		s.publish(MilestoneApprovedEvent{ProjectID: projectID, Index: index})
		if completed {
			s.publish(ProjectCompletedEvent{ProjectID: projectID})
		}
		return nil
	})
}

func (s *Service) DisputeMilestone(ctx context.Context, projectID uint64, index int, caller common.Address) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opDisputeMilestone), start, err) }()

	return s.withMilestone(ctx, projectID, index, func(p *Project, m *Milestone) error {
		if err := authorize(opDisputeMilestone, p, caller, m); err != nil {
			return err
		}
		if err := s.ledger.Dispute(p, m); err != nil {
			return err
		}
		s.publish(MilestoneDisputedEvent{ProjectID: projectID, Index: index})
		return nil
	})
}

func (s *Service) ResolveDispute(ctx context.Context, projectID uint64, index int, caller common.Address, approveFreelancer bool) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opResolveDispute), start, err) }()

	return s.withMilestone(ctx, projectID, index, func(p *Project, m *Milestone) error {
		if err := authorize(opResolveDispute, p, caller, m); err != nil {
			return err
		}
		completed, err := s.ledger.Resolve(p, m, approveFreelancer)
		if err != nil {
			return err
		}

		metrics.SetValueLocked(s.vault.TotalLocked())
		s.publish(DisputeResolvedEvent{ProjectID: projectID, Index: index, Approved: approveFreelancer})
		if completed {
			s.publish(ProjectCompletedEvent{ProjectID: projectID})
		}
		return nil
	})
}

// RefundProject lets the client reclaim every remaining locked unit after
// the deadline passed without the engagement settling
func (s *Service) RefundProject(ctx context.Context, projectID uint64, caller common.Address) (err error) {
	start := time.Now()
	defer func() { s.observe(string(opRefundProject), start, err) }()

	return s.withProject(ctx, projectID, func(p *Project) error {
		if err := authorize(opRefundProject, p, caller, nil); err != nil {
			return err
		}
		if !time.Now().After(p.Deadline) {
			return lib.WrapError(ErrInvalidTransition,
				fmt.Errorf("project %d deadline %s not reached", projectID, p.Deadline))
		}

		remaining := s.vault.Locked(projectID)
		prevStatus := p.Status
		p.Status = ProjectStatusRefunded

		if err := s.vault.Refund(projectID, p.Client, remaining); err != nil {
			p.Status = prevStatus
			return err
		}

		metrics.SetValueLocked(s.vault.TotalLocked())
		s.publish(ProjectRefundedEvent{ProjectID: projectID, Amount: remaining})
		return nil
	})
}

//
// Queries
//

func (s *Service) GetProject(ctx context.Context, projectID uint64) (snap ProjectSnapshot, err error) {
	err = s.withProject(ctx, projectID, func(p *Project) error {
		snap = p.snapshot()
		return nil
	})
	return snap, err
}

func (s *Service) GetMilestone(ctx context.Context, projectID uint64, index int) (snap MilestoneSnapshot, err error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return MilestoneSnapshot{}, err
	}
	if index < 0 || index >= len(p.Milestones) {
		return MilestoneSnapshot{}, lib.WrapError(ErrNotFound, fmt.Errorf("milestone %d of project %d", index, projectID))
	}
	return p.Milestones[index], nil
}

func (s *Service) ListProjects(ctx context.Context) ([]ProjectSnapshot, error) {
	var out []ProjectSnapshot
	var err error
	s.registry.Range(func(p *Project) bool {
		if lockErr := p.mutex.LockCtx(ctx); lockErr != nil {
			err = lib.WrapError(ErrLockTimeout, lockErr)
			return false
		}
		out = append(out, p.snapshot())
		p.mutex.Unlock()
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ProjectCount() uint64 {
	return s.registry.Count()
}

func (s *Service) LockedBalance(projectID uint64) (*big.Int, error) {
	if _, err := s.registry.Get(projectID); err != nil {
		return nil, err
	}
	return s.vault.Locked(projectID), nil
}

func (s *Service) Transfers(projectID uint64) ([]Transfer, error) {
	if _, err := s.registry.Get(projectID); err != nil {
		return nil, err
	}
	return s.vault.Transfers(projectID), nil
}

func (s *Service) TotalTransferred(recipient common.Address) *big.Int {
	return s.vault.TotalTransferred(recipient)
}

//
// Internals
//

func (s *Service) withProject(ctx context.Context, projectID uint64, fn func(p *Project) error) error {
	p, err := s.registry.Get(projectID)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := p.mutex.LockCtx(lockCtx); err != nil {
		return lib.WrapError(ErrLockTimeout, err)
	}
	defer p.mutex.Unlock()

	return fn(p)
}

func (s *Service) withMilestone(ctx context.Context, projectID uint64, index int, fn func(p *Project, m *Milestone) error) error {
	return s.withProject(ctx, projectID, func(p *Project) error {
		m, ok := p.milestone(index)
		if !ok {
			return lib.WrapError(ErrNotFound, fmt.Errorf("milestone %d of project %d", index, projectID))
		}
		return fn(p, m)
	})
}

func (s *Service) publish(event eventbus.Event) {
	s.bus.Publish(event)
	metrics.EventsPublished.WithLabelValues(event.EventName()).Inc()
	s.log.Debugf("event %s topic %s published: %+v", event.EventName(), Topic(event.EventName()), event)
}

func (s *Service) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = errorKind(err)
		if errors.Is(err, ErrInternal) {
			s.log.Errorf("operation %s failed with invariant violation: %s", op, err)
		}
	}
	metrics.ObserveOperation(op, result, start)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrFundingMismatch):
		return "funding_mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrInternal):
		return "internal"
	}
	return "error"
}
