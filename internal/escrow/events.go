package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event names used as bus topics
const (
	EventProjectCreated     = "ProjectCreated"
	EventMilestoneAdded     = "MilestoneAdded"
	EventProjectStarted     = "ProjectStarted"
	EventMilestoneSubmitted = "MilestoneSubmitted"
	EventMilestoneApproved  = "MilestoneApproved"
	EventMilestoneDisputed  = "MilestoneDisputed"
	EventDisputeResolved    = "DisputeResolved"
	EventProjectCompleted   = "ProjectCompleted"
	EventProjectCancelled   = "ProjectCancelled"
	EventProjectRefunded    = "ProjectRefunded"
)

// Canonical event signatures and their keccak topic hashes, so downstream
// indexers can match notifications against on-chain style topics
const (
	projectCreatedSig     = "ProjectCreated(uint256,address,address,address)"
	milestoneAddedSig     = "MilestoneAdded(uint256,uint256)"
	projectStartedSig     = "ProjectStarted(uint256)"
	milestoneSubmittedSig = "MilestoneSubmitted(uint256,uint256,string)"
	milestoneApprovedSig  = "MilestoneApproved(uint256,uint256)"
	milestoneDisputedSig  = "MilestoneDisputed(uint256,uint256)"
	disputeResolvedSig    = "DisputeResolved(uint256,uint256,bool)"
	projectCompletedSig   = "ProjectCompleted(uint256)"
	projectCancelledSig   = "ProjectCancelled(uint256)"
	projectRefundedSig    = "ProjectRefunded(uint256,uint256)"
)

var (
	ProjectCreatedTopic     = crypto.Keccak256Hash([]byte(projectCreatedSig))
	MilestoneAddedTopic     = crypto.Keccak256Hash([]byte(milestoneAddedSig))
	ProjectStartedTopic     = crypto.Keccak256Hash([]byte(projectStartedSig))
	MilestoneSubmittedTopic = crypto.Keccak256Hash([]byte(milestoneSubmittedSig))
	MilestoneApprovedTopic  = crypto.Keccak256Hash([]byte(milestoneApprovedSig))
	MilestoneDisputedTopic  = crypto.Keccak256Hash([]byte(milestoneDisputedSig))
	DisputeResolvedTopic    = crypto.Keccak256Hash([]byte(disputeResolvedSig))
	ProjectCompletedTopic   = crypto.Keccak256Hash([]byte(projectCompletedSig))
	ProjectCancelledTopic   = crypto.Keccak256Hash([]byte(projectCancelledSig))
	ProjectRefundedTopic    = crypto.Keccak256Hash([]byte(projectRefundedSig))
)

var eventTopics = map[string]common.Hash{
	EventProjectCreated:     ProjectCreatedTopic,
	EventMilestoneAdded:     MilestoneAddedTopic,
	EventProjectStarted:     ProjectStartedTopic,
	EventMilestoneSubmitted: MilestoneSubmittedTopic,
	EventMilestoneApproved:  MilestoneApprovedTopic,
	EventMilestoneDisputed:  MilestoneDisputedTopic,
	EventDisputeResolved:    DisputeResolvedTopic,
	EventProjectCompleted:   ProjectCompletedTopic,
	EventProjectCancelled:   ProjectCancelledTopic,
	EventProjectRefunded:    ProjectRefundedTopic,
}

// Topic returns the keccak topic hash for a bus event name, so consumers can
// correlate a notification with its on-chain style log topic. Zero hash for
// unknown names.
func Topic(eventName string) common.Hash {
	return eventTopics[eventName]
}

type ProjectCreatedEvent struct {
	ProjectID  uint64
	Client     common.Address
	Freelancer common.Address
	Arbiter    common.Address
}

func (ProjectCreatedEvent) EventName() string { return EventProjectCreated }

type MilestoneAddedEvent struct {
	ProjectID uint64
	Index     int
}

func (MilestoneAddedEvent) EventName() string { return EventMilestoneAdded }

type ProjectStartedEvent struct {
	ProjectID uint64
}

func (ProjectStartedEvent) EventName() string { return EventProjectStarted }

type MilestoneSubmittedEvent struct {
	ProjectID       uint64
	Index           int
	DeliverableHash string
}

func (MilestoneSubmittedEvent) EventName() string { return EventMilestoneSubmitted }

type MilestoneApprovedEvent struct {
	ProjectID uint64
	Index     int
}

func (MilestoneApprovedEvent) EventName() string { return EventMilestoneApproved }

type MilestoneDisputedEvent struct {
	ProjectID uint64
	Index     int
}

func (MilestoneDisputedEvent) EventName() string { return EventMilestoneDisputed }

type DisputeResolvedEvent struct {
	ProjectID uint64
	Index     int
	Approved  bool
}

func (DisputeResolvedEvent) EventName() string { return EventDisputeResolved }

type ProjectCompletedEvent struct {
	ProjectID uint64
}

func (ProjectCompletedEvent) EventName() string { return EventProjectCompleted }

type ProjectCancelledEvent struct {
	ProjectID uint64
}

func (ProjectCancelledEvent) EventName() string { return EventProjectCancelled }

type ProjectRefundedEvent struct {
	ProjectID uint64
	Amount    *big.Int
}

func (ProjectRefundedEvent) EventName() string { return EventProjectRefunded }
