package registry

import (
	"strings"
	"sync"

	"github.com/podhmo/molang/object"
)

// Domains routes query properties to the scope object that actually owns
// them, e.g. "is_on_ground" -> "actor". Each property can be routed once.
type Domains struct {
	mu      sync.RWMutex
	domains map[string]string
}

// NewDomains creates an empty registry.
func NewDomains() *Domains {
	return &Domains{domains: make(map[string]string)}
}

// Register routes property to domain.
func (d *Domains) Register(property, domain string) error {
	property = strings.ToLower(property)

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.domains[property]; ok {
		return object.NewCompileError(object.ErrDuplicateDomainRegistration, property, "already registered to %q", prev)
	}
	d.domains[property] = domain
	return nil
}

// Domain returns the domain property is routed to.
func (d *Domains) Domain(property string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	domain, ok := d.domains[strings.ToLower(property)]
	return domain, ok
}
