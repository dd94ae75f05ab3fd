package access

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

// Managed is embedded by every component: it remembers who deployed the
// component and which permission registry it answers to.
type Managed struct {
	owner    common.Address
	registry *Registry
}

func NewManaged(owner common.Address, registry *Registry) Managed {
	return Managed{owner: owner, registry: registry}
}

func (m *Managed) Owner() common.Address { return m.owner }

// Registry returns the permission registry, or nil when none is set.
func (m *Managed) Registry() *Registry { return m.registry }

// Permissions returns the permission registry or ErrNotInitialized.
func (m *Managed) Permissions() (*Registry, error) {
	if m.registry == nil {
		return nil, domain.ErrNotInitialized
	}
	return m.registry, nil
}

// SetRegistry rebinds the component to another permission registry. Only the
// component owner may do this.
func (m *Managed) SetRegistry(ctx context.Context, call ledger.Call, registry *Registry) error {
	if call.Sender != m.owner {
		return domain.ErrNotComponentOwner
	}
	if registry == nil {
		return domain.ErrZeroAddress
	}

	prev := m.registry
	m.registry = registry
	ledger.OnRevert(ctx, func() { m.registry = prev })
	return nil
}
