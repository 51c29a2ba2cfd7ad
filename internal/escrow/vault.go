package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/freelanced/escrowd/internal/interfaces"
	"gitlab.com/freelanced/escrowd/internal/lib"
)

type TransferKind string

const (
	TransferRelease TransferKind = "release" // milestone payout to the freelancer
	TransferFee     TransferKind = "fee"     // arbiter fee share
	TransferRefund  TransferKind = "refund"  // return to the client
)

// Transfer is one disbursement out of a project's locked balance
type Transfer struct {
	ProjectID uint64
	Recipient common.Address
	Amount    *big.Int
	Kind      TransferKind
	At        time.Time
}

// Vault is the custody ledger: one locked balance per project, an append-only
// transfer log, and running totals per recipient. Funds enter once via Lock
// and leave only via Release and Refund; nothing else mutates balances.
type Vault struct {
	mu        sync.RWMutex
	locked    map[uint64]*big.Int
	transfers []Transfer
	totals    map[common.Address]*big.Int

	log interfaces.ILogger
}

func NewVault(log interfaces.ILogger) *Vault {
	return &Vault{
		locked: make(map[uint64]*big.Int),
		totals: make(map[common.Address]*big.Int),
		log:    log,
	}
}

// Lock records the funded balance for a project. Called exactly once per
// project at startProject time.
func (v *Vault) Lock(projectID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return lib.WrapError(ErrInvalidArgument, fmt.Errorf("lock amount must be positive"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.locked[projectID]; ok {
		return lib.WrapError(ErrAlreadyFunded, fmt.Errorf("project %d", projectID))
	}
	v.locked[projectID] = new(big.Int).Set(amount)

	v.log.Infof("locked %s for project %d", amount.String(), projectID)
	return nil
}

// Release pays part of the locked balance out to the freelancer or the
// arbiter. A balance underrun here means the ledger and the vault disagree;
// it is wrapped as ErrInternal and must abort the calling operation.
func (v *Vault) Release(projectID uint64, recipient common.Address, amount *big.Int, kind TransferKind) error {
	return v.disburse(projectID, recipient, amount, kind)
}

// Refund mirrors Release but returns funds to the client
func (v *Vault) Refund(projectID uint64, recipient common.Address, amount *big.Int) error {
	return v.disburse(projectID, recipient, amount, TransferRefund)
}

func (v *Vault) disburse(projectID uint64, recipient common.Address, amount *big.Int, kind TransferKind) error {
	if amount == nil || amount.Sign() < 0 {
		return lib.WrapError(ErrInvalidArgument, fmt.Errorf("%s amount must be non-negative", kind))
	}
	if amount.Sign() == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	balance, ok := v.locked[projectID]
	if !ok || balance.Cmp(amount) < 0 {
		held := "0"
		if ok {
			held = balance.String()
		}
		return lib.WrapError(ErrInternal, lib.WrapError(ErrInsufficientLockedFunds,
			fmt.Errorf("project %d holds %s, %s of %s requested", projectID, held, kind, amount.String())))
	}

	balance.Sub(balance, amount)

	total, ok := v.totals[recipient]
	if !ok {
		total = new(big.Int)
		v.totals[recipient] = total
	}
	total.Add(total, amount)

	v.transfers = append(v.transfers, Transfer{
		ProjectID: projectID,
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
		Kind:      kind,
		At:        time.Now(),
	})

	v.log.Infof("%s %s to %s, project %d, remaining %s",
		kind, amount.String(), lib.AddrShort(recipient.Hex()), projectID, balance.String())
	return nil
}

// Locked returns the balance currently held for a project
func (v *Vault) Locked(projectID uint64) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	balance, ok := v.locked[projectID]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// TotalLocked returns the balance held across all projects
func (v *Vault) TotalLocked() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := new(big.Int)
	for _, balance := range v.locked {
		total.Add(total, balance)
	}
	return total
}

// TotalTransferred returns everything ever disbursed to a recipient
func (v *Vault) TotalTransferred(recipient common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total, ok := v.totals[recipient]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(total)
}

// Transfers returns the disbursement log for a project in order
func (v *Vault) Transfers(projectID uint64) []Transfer {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []Transfer
	for _, t := range v.transfers {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out
}
