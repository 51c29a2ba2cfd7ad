package escrow

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gitlab.com/freelanced/escrowd/internal/eventbus"
	"gitlab.com/freelanced/escrowd/internal/lib"
)

type fixture struct {
	service *Service
	vault   *Vault
	bus     *eventbus.EventBus

	client     common.Address
	freelancer common.Address
	arbiter    common.Address
	stranger   common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := lib.NewTestLogger()

	bus := eventbus.NewEventBus(log)
	t.Cleanup(bus.Close)

	fees := NewFeePolicy()
	vault := NewVault(log)
	registry := NewProjectRegistry(log)
	ledger := NewMilestoneLedger(vault, fees, log)

	return &fixture{
		service:    NewService(registry, ledger, vault, fees, bus, time.Second, log),
		vault:      vault,
		bus:        bus,
		client:     common.HexToAddress("0x1000000000000000000000000000000000000001"),
		freelancer: common.HexToAddress("0x1000000000000000000000000000000000000002"),
		arbiter:    common.HexToAddress("0x1000000000000000000000000000000000000003"),
		stranger:   common.HexToAddress("0x1000000000000000000000000000000000000004"),
	}
}

func (f *fixture) createProject(t *testing.T) uint64 {
	t.Helper()
	id, err := f.service.CreateProject(context.Background(), f.client, f.freelancer, f.arbiter, "build the thing", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return id
}

// one milestone of 100, funded with 102 (100 + 2% fee)
func (f *fixture) createFundedProject(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()

	id := f.createProject(t)
	_, err := f.service.AddMilestone(ctx, id, f.client, "M1", big.NewInt(100))
	require.NoError(t, err)
	err = f.service.StartProject(ctx, id, f.client, big.NewInt(102))
	require.NoError(t, err)
	return id
}

func TestCreateProjectInitialState(t *testing.T) {
	f := newFixture(t)
	id := f.createProject(t)

	snap, err := f.service.GetProject(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusCreated, snap.Status)
	require.Equal(t, "0", snap.TotalAmount.String())
	require.Equal(t, "0", snap.PaidAmount.String())
	require.Nil(t, snap.ArbiterFee)
	require.Empty(t, snap.Milestones)
}

func TestGetProjectNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetProject(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddMilestoneTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	amounts := []int64{100, 250, 50}
	for i, amount := range amounts {
		index, err := f.service.AddMilestone(ctx, id, f.client, "milestone", big.NewInt(amount))
		require.NoError(t, err)
		require.Equal(t, i, index)
	}

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "400", snap.TotalAmount.String())
	require.Len(t, snap.Milestones, 3)
	for i, m := range snap.Milestones {
		require.Equal(t, i, m.Index)
		require.Equal(t, MilestoneStatusPending, m.Status)
	}
}

func TestAddMilestoneValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	_, err := f.service.AddMilestone(ctx, id, f.client, "", big.NewInt(100))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.service.AddMilestone(ctx, id, f.client, "work", big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.service.AddMilestone(ctx, id, f.freelancer, "work", big.NewInt(100))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestStartProjectFundingMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	_, err := f.service.AddMilestone(ctx, id, f.client, "M1", big.NewInt(100))
	require.NoError(t, err)

	for _, funds := range []int64{100, 101, 103, 0} {
		err = f.service.StartProject(ctx, id, f.client, big.NewInt(funds))
		require.ErrorIs(t, err, ErrFundingMismatch)
	}

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusCreated, snap.Status)
	require.Equal(t, "0", f.vault.Locked(id).String())
}

func TestStartProjectRequiresMilestones(t *testing.T) {
	f := newFixture(t)
	id := f.createProject(t)

	err := f.service.StartProject(context.Background(), id, f.client, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartProjectLocksFundsAndFixesFee(t *testing.T) {
	f := newFixture(t)
	id := f.createFundedProject(t)

	snap, err := f.service.GetProject(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusInProgress, snap.Status)
	require.Equal(t, "2", snap.ArbiterFee.String())
	require.Equal(t, "102", f.vault.Locked(id).String())
}

func TestSubmitMilestoneUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	err := f.service.SubmitMilestone(ctx, id, 0, f.client, "hash1")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = f.service.SubmitMilestone(ctx, id, 0, f.stranger, "hash1")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubmitMilestoneStoresProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	err := f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1")
	require.NoError(t, err)

	m, err := f.service.GetMilestone(ctx, id, 0)
	require.NoError(t, err)
	require.Equal(t, MilestoneStatusSubmitted, m.Status)
	require.Equal(t, "hash1", m.DeliverableHash)
}

// client creates, adds one milestone of 100, funds 102, freelancer submits,
// client approves: freelancer receives 100, fee remainder goes to the arbiter,
// project completes with the vault drained to zero
func TestApprovePaysOutAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.ApproveMilestone(ctx, id, 0, f.client))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusCompleted, snap.Status)
	require.Equal(t, "100", snap.PaidAmount.String())
	require.Equal(t, MilestoneStatusPaid, snap.Milestones[0].Status)

	require.Equal(t, "100", f.vault.TotalTransferred(f.freelancer).String())
	require.Equal(t, "2", f.vault.TotalTransferred(f.arbiter).String())
	require.Equal(t, "0", f.vault.Locked(id).String())
}

func TestApproveTwiceFailsWithoutDoublePayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.ApproveMilestone(ctx, id, 0, f.client))

	err := f.service.ApproveMilestone(ctx, id, 0, f.client)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, "100", f.vault.TotalTransferred(f.freelancer).String())
}

func TestApprovePartialKeepsProjectRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	_, err := f.service.AddMilestone(ctx, id, f.client, "M1", big.NewInt(100))
	require.NoError(t, err)
	_, err = f.service.AddMilestone(ctx, id, f.client, "M2", big.NewInt(300))
	require.NoError(t, err)
	require.NoError(t, f.service.StartProject(ctx, id, f.client, big.NewInt(408)))

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.ApproveMilestone(ctx, id, 0, f.client))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusInProgress, snap.Status)
	require.Equal(t, "100", snap.PaidAmount.String())
	// second milestone plus the untouched fee reserve stay locked
	require.Equal(t, "308", f.vault.Locked(id).String())
}

func TestDisputeFreezesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	_, err := f.service.AddMilestone(ctx, id, f.client, "M1", big.NewInt(100))
	require.NoError(t, err)
	_, err = f.service.AddMilestone(ctx, id, f.client, "M2", big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, f.service.StartProject(ctx, id, f.client, big.NewInt(204)))

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.DisputeMilestone(ctx, id, 0, f.client))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusDisputed, snap.Status)
	require.Equal(t, MilestoneStatusDisputed, snap.Milestones[0].Status)

	// nothing else proceeds while the dispute is open
	err = f.service.SubmitMilestone(ctx, id, 1, f.freelancer, "hash2")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolveDisputeApprovePaysFreelancer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.DisputeMilestone(ctx, id, 0, f.client))
	require.NoError(t, f.service.ResolveDispute(ctx, id, 0, f.arbiter, true))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, ProjectStatusDisputed, snap.Status)
	require.Equal(t, "100", snap.PaidAmount.String())
	require.Equal(t, MilestoneStatusPaid, snap.Milestones[0].Status)

	require.Equal(t, "100", f.vault.TotalTransferred(f.freelancer).String())
	require.Equal(t, "2", f.vault.TotalTransferred(f.arbiter).String())
}

func TestResolveDisputeRejectRefundsClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.DisputeMilestone(ctx, id, 0, f.client))
	require.NoError(t, f.service.ResolveDispute(ctx, id, 0, f.arbiter, false))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, MilestoneStatusRefunded, snap.Milestones[0].Status)
	require.Equal(t, "0", snap.PaidAmount.String())
	// the only milestone reached a terminal status, so the project settled
	require.Equal(t, ProjectStatusCompleted, snap.Status)

	require.Equal(t, "100", f.vault.TotalTransferred(f.client).String())
	require.Equal(t, "2", f.vault.TotalTransferred(f.arbiter).String())
	require.Equal(t, "0", f.vault.Locked(id).String())
	require.Equal(t, "0", f.vault.TotalTransferred(f.freelancer).String())
}

func TestResolveDisputeRequiresArbiter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)

	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.DisputeMilestone(ctx, id, 0, f.client))

	require.ErrorIs(t, f.service.ResolveDispute(ctx, id, 0, f.client, true), ErrUnauthorized)
	require.ErrorIs(t, f.service.ResolveDispute(ctx, id, 0, f.freelancer, true), ErrUnauthorized)
}

func TestCancelProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createProject(t)

	require.NoError(t, f.service.CancelProject(ctx, id, f.client))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusCancelled, snap.Status)

	_, err = f.service.AddMilestone(ctx, id, f.client, "late", big.NewInt(10))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelFundedProjectFails(t *testing.T) {
	f := newFixture(t)
	id := f.createFundedProject(t)

	err := f.service.CancelProject(context.Background(), id, f.client)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefundProjectAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deadline := time.Now().Add(300 * time.Millisecond)
	id, err := f.service.CreateProject(ctx, f.client, f.freelancer, f.arbiter, "short fuse", deadline)
	require.NoError(t, err)
	_, err = f.service.AddMilestone(ctx, id, f.client, "M1", big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, f.service.StartProject(ctx, id, f.client, big.NewInt(102)))

	// too early
	err = f.service.RefundProject(ctx, id, f.client)
	require.ErrorIs(t, err, ErrInvalidTransition)

	time.Sleep(time.Until(deadline) + 50*time.Millisecond)

	require.NoError(t, f.service.RefundProject(ctx, id, f.client))

	snap, err := f.service.GetProject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ProjectStatusRefunded, snap.Status)
	require.Equal(t, "102", f.vault.TotalTransferred(f.client).String())
	require.Equal(t, "0", f.vault.Locked(id).String())
}

func TestConcurrentApprovalPaysOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createFundedProject(t)
	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.service.ApproveMilestone(ctx, id, 0, f.client)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, "100", f.vault.TotalTransferred(f.freelancer).String())
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	id := f.createFundedProject(t)
	require.NoError(t, f.service.SubmitMilestone(ctx, id, 0, f.freelancer, "hash1"))
	require.NoError(t, f.service.ApproveMilestone(ctx, id, 0, f.client))

	want := []string{
		EventProjectCreated,
		EventMilestoneAdded,
		EventProjectStarted,
		EventMilestoneSubmitted,
		EventMilestoneApproved,
		EventProjectCompleted,
	}

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	for _, name := range want {
		event, ok := sub.Next(recvCtx)
		require.True(t, ok, "expected event %s", name)
		require.Equal(t, name, event.EventName())
	}
}

func TestListProjectsAndCount(t *testing.T) {
	f := newFixture(t)

	f.createProject(t)
	f.createProject(t)

	require.Equal(t, uint64(2), f.service.ProjectCount())
	projects, err := f.service.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
}

func TestListProjectsHonorsContext(t *testing.T) {
	f := newFixture(t)
	id := f.createProject(t)

	// hold the project lock so the listing cannot proceed
	p, err := f.service.registry.Get(id)
	require.NoError(t, err)
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.service.ListProjects(ctx)
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestGetMilestoneNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.createProject(t)

	_, err := f.service.GetMilestone(context.Background(), id, 0)
	require.ErrorIs(t, err, ErrNotFound)
}
