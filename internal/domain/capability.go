package domain

import "fmt"

// Capability is a permission bit that gates one class of mutating operation.
type Capability uint8

const (
	CanSellTickets Capability = iota
	CanMakeRefund
	CanUpdateEvent
	CanBurnTickets
	CanSignTransaction
	CanAddEvents
	CanDistributeFunds
)

var capabilityNames = map[Capability]string{
	CanSellTickets:     "sell-tickets",
	CanMakeRefund:      "make-refund",
	CanUpdateEvent:     "update-event",
	CanBurnTickets:     "burn-tickets",
	CanSignTransaction: "sign-transaction",
	CanAddEvents:       "add-events",
	CanDistributeFunds: "distribute-funds",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// ParseCapability accepts the dashed capability name.
func ParseCapability(s string) (Capability, error) {
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

// Role identifies which component an identity is bound to in the role directory.
type Role uint8

const (
	RoleEvent Role = iota
	RoleMarketplace
	RoleDistributor
)

var roleNames = map[Role]string{
	RoleEvent:       "event",
	RoleMarketplace: "marketplace",
	RoleDistributor: "distributor",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole accepts the lower-case role name.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
