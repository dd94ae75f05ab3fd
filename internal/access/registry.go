// Package access holds the capability table and role directory that every
// other component consults before mutating state.
package access

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

// ComponentDirectory tells component identities apart from end users.
type ComponentDirectory interface {
	IsComponent(addr common.Address) bool
}

// Registry is the permission registry: a capability table, a role directory
// and the per-event ticket registry directory.
type Registry struct {
	self         common.Address
	components   ComponentDirectory
	admin        common.Address
	grants       map[grantKey]bool
	roles        map[domain.Role]common.Address
	eventTickets map[uint64]common.Address
}

type grantKey struct {
	id         common.Address
	capability domain.Capability
}

func New(components ComponentDirectory, self, admin common.Address) *Registry {
	return &Registry{
		self:         self,
		components:   components,
		admin:        admin,
		grants:       make(map[grantKey]bool),
		roles:        make(map[domain.Role]common.Address),
		eventTickets: make(map[uint64]common.Address),
	}
}

// Deploy creates a registry administered by admin.
func Deploy(ctx context.Context, l *ledger.Ledger, admin common.Address) *Registry {
	r, _ := ledger.Deploy(ctx, l, admin, func(self common.Address) *Registry {
		return New(l, self, admin)
	})
	return r
}

func (r *Registry) Address() common.Address       { return r.self }
func (r *Registry) Administrator() common.Address { return r.admin }

// SetCapability grants or revokes one capability.
func (r *Registry) SetCapability(ctx context.Context, call ledger.Call, id common.Address, capability domain.Capability, enabled bool) error {
	if err := r.requireAdmin(call); err != nil {
		return err
	}

	key := grantKey{id: id, capability: capability}
	prev, had := r.grants[key]
	if enabled {
		r.grants[key] = true
	} else {
		delete(r.grants, key)
	}
	ledger.OnRevert(ctx, func() {
		if had {
			r.grants[key] = prev
		} else {
			delete(r.grants, key)
		}
	})

	ledger.Emit(ctx, ledger.Log{
		Component: r.self,
		Name:      "CapabilitySet",
		Attrs: map[string]string{
			"identity":   id.Hex(),
			"capability": capability.String(),
			"enabled":    strconv.FormatBool(enabled),
		},
	})
	return nil
}

// RegisterRole binds role to id, replacing any previous binding. Binding the
// zero address clears the role.
func (r *Registry) RegisterRole(ctx context.Context, call ledger.Call, role domain.Role, id common.Address) error {
	if err := r.requireAdmin(call); err != nil {
		return err
	}

	prev, had := r.roles[role]
	if id == (common.Address{}) {
		delete(r.roles, role)
	} else {
		r.roles[role] = id
	}
	ledger.OnRevert(ctx, func() {
		if had {
			r.roles[role] = prev
		} else {
			delete(r.roles, role)
		}
	})

	ledger.Emit(ctx, ledger.Log{
		Component: r.self,
		Name:      "RoleRegistered",
		Attrs:     map[string]string{"role": role.String(), "identity": id.Hex()},
	})
	return nil
}

// TransferAdministration hands the registry over to a new administrator.
func (r *Registry) TransferAdministration(ctx context.Context, call ledger.Call, next common.Address) error {
	if err := r.requireAdmin(call); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return domain.ErrZeroAddress
	}

	prev := r.admin
	r.admin = next
	ledger.OnRevert(ctx, func() { r.admin = prev })
	return nil
}

// RegisterEventTickets records which ticket registry serves eventID. The
// administrator and the marketplace may do this.
func (r *Registry) RegisterEventTickets(ctx context.Context, call ledger.Call, eventID uint64, tickets common.Address) error {
	if call.Sender != r.admin {
		if err := r.RequireRole(call.Sender, domain.RoleMarketplace); err != nil {
			return err
		}
	}

	prev, had := r.eventTickets[eventID]
	r.eventTickets[eventID] = tickets
	ledger.OnRevert(ctx, func() {
		if had {
			r.eventTickets[eventID] = prev
		} else {
			delete(r.eventTickets, eventID)
		}
	})

	ledger.Emit(ctx, ledger.Log{
		Component: r.self,
		Name:      "EventTicketsRegistered",
		Attrs: map[string]string{
			"event_id": strconv.FormatUint(eventID, 10),
			"tickets":  tickets.Hex(),
		},
	})
	return nil
}

func (r *Registry) HasCapability(id common.Address, capability domain.Capability) bool {
	return r.grants[grantKey{id: id, capability: capability}]
}

// RoleHolder returns the identity bound to role, or the zero address.
func (r *Registry) RoleHolder(role domain.Role) common.Address {
	return r.roles[role]
}

func (r *Registry) IsComponent(id common.Address) bool {
	return r.components != nil && r.components.IsComponent(id)
}

// TicketRegistryOf returns the ticket registry serving eventID, or the zero address.
func (r *Registry) TicketRegistryOf(eventID uint64) common.Address {
	return r.eventTickets[eventID]
}

// RequireRole fails unless role is bound and id is its holder.
func (r *Registry) RequireRole(id common.Address, role domain.Role) error {
	holder := r.roles[role]
	if holder == (common.Address{}) {
		return fmt.Errorf("%s: %w", role, domain.ErrRoleNotBound)
	}
	if holder != id {
		return fmt.Errorf("%s: %w", role, domain.ErrCallerNotRole)
	}
	return nil
}

// RequireCapability fails unless id holds capability.
func (r *Registry) RequireCapability(id common.Address, capability domain.Capability) error {
	if !r.HasCapability(id, capability) {
		return fmt.Errorf("%s: %w", capability, domain.ErrMissingCapability)
	}
	return nil
}

// RequirePrivileged is RequireRole followed by RequireCapability, the check
// every privileged component operation starts with.
func (r *Registry) RequirePrivileged(id common.Address, role domain.Role, capability domain.Capability) error {
	if err := r.RequireRole(id, role); err != nil {
		return err
	}
	return r.RequireCapability(id, capability)
}

func (r *Registry) requireAdmin(call ledger.Call) error {
	if call.Sender != r.admin {
		return domain.ErrNotAdministrator
	}
	return nil
}
