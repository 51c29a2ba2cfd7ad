package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/freelanced/escrowd/internal/lib"
	"golang.org/x/exp/slices"
)

type Role uint8

const (
	RoleClient Role = iota
	RoleFreelancer
	RoleArbiter
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleFreelancer:
		return "freelancer"
	case RoleArbiter:
		return "arbiter"
	}
	return "unknown"
}

type operation string

const (
	opAddMilestone     operation = "addMilestone"
	opStartProject     operation = "startProject"
	opCancelProject    operation = "cancelProject"
	opSubmitMilestone  operation = "submitMilestone"
	opApproveMilestone operation = "approveMilestone"
	opDisputeMilestone operation = "disputeMilestone"
	opResolveDispute   operation = "resolveDispute"
	opRefundProject    operation = "refundProject"
)

// opRule is one row of the authorization table: who may call the operation
// and which project/milestone states it is valid in. Milestone states are
// nil for project-level operations.
type opRule struct {
	role            Role
	projectStatus   []ProjectStatus
	milestoneStatus []MilestoneStatus
}

var opRules = map[operation]opRule{
	opAddMilestone:     {RoleClient, []ProjectStatus{ProjectStatusCreated}, nil},
	opStartProject:     {RoleClient, []ProjectStatus{ProjectStatusCreated}, nil},
	opCancelProject:    {RoleClient, []ProjectStatus{ProjectStatusCreated}, nil},
	opSubmitMilestone:  {RoleFreelancer, []ProjectStatus{ProjectStatusInProgress}, []MilestoneStatus{MilestoneStatusPending}},
	opApproveMilestone: {RoleClient, []ProjectStatus{ProjectStatusInProgress}, []MilestoneStatus{MilestoneStatusSubmitted}},
	opDisputeMilestone: {RoleClient, []ProjectStatus{ProjectStatusInProgress}, []MilestoneStatus{MilestoneStatusSubmitted}},
	opResolveDispute:   {RoleArbiter, []ProjectStatus{ProjectStatusDisputed}, []MilestoneStatus{MilestoneStatusDisputed}},
	opRefundProject:    {RoleClient, []ProjectStatus{ProjectStatusInProgress}, nil},
}

func (p *Project) partyFor(role Role) common.Address {
	switch role {
	case RoleClient:
		return p.Client
	case RoleFreelancer:
		return p.Freelancer
	case RoleArbiter:
		return p.Arbiter
	}
	return common.Address{}
}

// authorize is the single guard evaluated before every state-mutating
// operation. It checks the caller's role first, then the project state, then
// the milestone state, so an unauthorized caller learns nothing about where
// the project currently stands.
func authorize(op operation, p *Project, caller common.Address, m *Milestone) error {
	rule, ok := opRules[op]
	if !ok {
		return lib.WrapError(ErrInternal, fmt.Errorf("no authorization rule for %s", op))
	}

	if p.partyFor(rule.role) != caller {
		return lib.WrapError(ErrUnauthorized,
			fmt.Errorf("%s: caller %s is not the %s", op, lib.AddrShort(caller.Hex()), rule.role))
	}

	if !slices.Contains(rule.projectStatus, p.Status) {
		return lib.WrapError(ErrInvalidTransition,
			fmt.Errorf("%s: project %d is %s", op, p.id, p.Status))
	}

	if rule.milestoneStatus != nil {
		if m == nil {
			return lib.WrapError(ErrInternal, fmt.Errorf("%s: milestone rule without milestone", op))
		}
		if !slices.Contains(rule.milestoneStatus, m.Status) {
			return lib.WrapError(ErrInvalidTransition,
				fmt.Errorf("%s: milestone %d of project %d is %s", op, m.Index, p.id, m.Status))
		}
	}

	return nil
}
