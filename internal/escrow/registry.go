package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/freelanced/escrowd/internal/interfaces"
	"gitlab.com/freelanced/escrowd/internal/lib"
	"go.uber.org/atomic"
)

// ProjectRegistry owns the project records. Records are kept in a concurrent
// collection keyed by id; ids are dense and monotonically assigned, never
// reused. Records are never removed — terminal projects stay queryable.
type ProjectRegistry struct {
	projects *lib.Collection[uint64, *Project]
	counter  *atomic.Uint64
	log      interfaces.ILogger
}

func NewProjectRegistry(log interfaces.ILogger) *ProjectRegistry {
	return &ProjectRegistry{
		projects: lib.NewCollection[uint64, *Project](),
		counter:  atomic.NewUint64(0),
		log:      log,
	}
}

func (r *ProjectRegistry) Create(client, freelancer, arbiter common.Address, description string, deadline time.Time) (*Project, error) {
	var zero common.Address

	if client == zero {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("zero client address"))
	}
	if freelancer == zero {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("zero freelancer address"))
	}
	if arbiter == zero {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("zero arbiter address"))
	}
	if freelancer == client {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("freelancer must differ from client"))
	}
	if arbiter == client {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("arbiter must differ from client"))
	}
	if arbiter == freelancer {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("arbiter must differ from freelancer"))
	}
	if description == "" {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("empty description"))
	}
	if !deadline.After(time.Now()) {
		return nil, lib.WrapError(ErrInvalidArgument, fmt.Errorf("deadline must be in the future"))
	}

	p := &Project{
		id:          r.counter.Inc(),
		Client:      client,
		Freelancer:  freelancer,
		Arbiter:     arbiter,
		Description: description,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
		TotalAmount: new(big.Int),
		PaidAmount:  new(big.Int),
		Status:      ProjectStatusCreated,
		mutex:       lib.NewMutex(),
	}
	r.projects.Store(p)

	r.log.Infof("project %d created, client %s freelancer %s arbiter %s",
		p.id, lib.AddrShort(client.Hex()), lib.AddrShort(freelancer.Hex()), lib.AddrShort(arbiter.Hex()))
	return p, nil
}

func (r *ProjectRegistry) Get(id uint64) (*Project, error) {
	p, ok := r.projects.Load(id)
	if !ok {
		return nil, lib.WrapError(ErrNotFound, fmt.Errorf("project %d", id))
	}
	return p, nil
}

// Count returns the number of projects ever created
func (r *ProjectRegistry) Count() uint64 {
	return r.counter.Load()
}

func (r *ProjectRegistry) Range(f func(p *Project) bool) {
	r.projects.Range(f)
}
