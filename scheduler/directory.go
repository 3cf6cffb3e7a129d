package scheduler

import (
	"strings"
	"sync"

	"github.com/feedline/scheduler/errors"
)

// ServiceDirectory maps collaborator service names to base URLs. The mapping
// is explicit and validated at startup; a job referencing an unmapped
// service is rejected rather than falling back to a default.
//
// Replace allows the mapping to be swapped at runtime (config hot-reload)
// without restarting the scheduler.
type ServiceDirectory struct {
	mu       sync.RWMutex
	baseURLs map[string]string
}

// NewServiceDirectory creates a directory from a service -> base URL map
func NewServiceDirectory(services map[string]string) *ServiceDirectory {
	d := &ServiceDirectory{baseURLs: make(map[string]string, len(services))}
	for name, baseURL := range services {
		d.baseURLs[name] = strings.TrimRight(baseURL, "/")
	}
	return d
}

// Resolve joins a service's base URL with an endpoint path
func (d *ServiceDirectory) Resolve(service, endpoint string) (string, error) {
	d.mu.RLock()
	baseURL, ok := d.baseURLs[service]
	d.mu.RUnlock()

	if !ok {
		return "", errors.Wrapf(errors.ErrServiceUnavailable, "no base URL configured for service %q", service)
	}

	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return baseURL + endpoint, nil
}

// Has reports whether a service has a configured base URL
func (d *ServiceDirectory) Has(service string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.baseURLs[service]
	return ok
}

// Replace atomically swaps the entire mapping
func (d *ServiceDirectory) Replace(services map[string]string) {
	next := make(map[string]string, len(services))
	for name, baseURL := range services {
		next[name] = strings.TrimRight(baseURL, "/")
	}

	d.mu.Lock()
	d.baseURLs = next
	d.mu.Unlock()
}
