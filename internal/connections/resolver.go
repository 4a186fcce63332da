package connections

import (
	"context"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scenark/scenark/internal/secrets"
	"github.com/scenark/scenark/pkg/schema"
)

// Handle is a live connection to one integration for one tenant.
// AuthTokenSealed is the at-rest form of AuthToken; it is opened with the
// vault at load time and never serialized back out.
type Handle struct {
	Integration     string            `json:"integration" yaml:"integration"`
	BaseURL         string            `json:"base_url" yaml:"base_url"`
	AuthToken       string            `json:"auth_token,omitempty" yaml:"auth_token,omitempty"`
	AuthTokenSealed string            `json:"-" yaml:"auth_token_sealed,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Resolver maps a logical integration identifier to a live connection handle.
// Implementations are consulted per run; the orchestrator never caches
// handles across executions.
type Resolver interface {
	// Resolve returns the connection handle for a tenant's integration,
	// or false when the integration is not connected.
	Resolve(ctx context.Context, tenantID, integration string) (*Handle, bool)

	// IsConnected reports whether the integration is currently connected.
	IsConnected(ctx context.Context, tenantID, integration string) bool
}

// Missing returns the required integrations that are not connected for the
// tenant, in sorted order.
func Missing(ctx context.Context, r Resolver, tenantID string, required []string) []string {
	var missing []string
	for _, integration := range required {
		if !r.IsConnected(ctx, tenantID, integration) {
			missing = append(missing, integration)
		}
	}
	sort.Strings(missing)
	return missing
}

// StaticResolver serves handles from an in-memory map, keyed by tenant then
// integration. Built from a YAML connections file or assembled directly in
// tests.
type StaticResolver struct {
	mu      sync.RWMutex
	handles map[string]map[string]*Handle // tenant -> integration -> handle
}

// NewStaticResolver creates an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		handles: make(map[string]map[string]*Handle),
	}
}

// connectionsFile is the YAML layout of a connections config file.
type connectionsFile struct {
	Tenants map[string][]Handle `yaml:"tenants"`
}

// LoadStaticResolver reads a YAML connections file. Entries with sealed
// tokens require LoadEncrypted.
func LoadStaticResolver(path string) (*StaticResolver, error) {
	return loadFile(path, nil)
}

// LoadEncrypted reads a YAML connections file, opening sealed auth tokens
// with the vault.
func LoadEncrypted(path string, vault secrets.Vault) (*StaticResolver, error) {
	return loadFile(path, vault)
}

func loadFile(path string, vault secrets.Vault) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read connections file: %s", err.Error()).WithCause(err)
	}

	var file connectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse connections file: %s", err.Error()).WithCause(err)
	}

	r := NewStaticResolver()
	for tenant, handles := range file.Tenants {
		for i := range handles {
			h := handles[i]
			if h.AuthTokenSealed != "" {
				if vault == nil {
					return nil, schema.NewErrorf(schema.ErrCodeConfig,
						"connection %s/%s has a sealed token but no vault key is configured", tenant, h.Integration)
				}
				token, err := vault.Open(h.AuthTokenSealed)
				if err != nil {
					return nil, schema.NewErrorf(schema.ErrCodeConfig,
						"open sealed token for %s/%s: %s", tenant, h.Integration, err.Error()).WithCause(err)
				}
				h.AuthToken = token
				h.AuthTokenSealed = ""
			}
			r.Add(tenant, &h)
		}
	}
	return r, nil
}

// Add registers a handle for a tenant.
func (r *StaticResolver) Add(tenantID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[tenantID] == nil {
		r.handles[tenantID] = make(map[string]*Handle)
	}
	r.handles[tenantID][h.Integration] = h
}

// Remove drops a tenant's integration connection.
func (r *StaticResolver) Remove(tenantID, integration string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles[tenantID], integration)
}

func (r *StaticResolver) Resolve(ctx context.Context, tenantID, integration string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[tenantID][integration]
	return h, ok
}

func (r *StaticResolver) IsConnected(ctx context.Context, tenantID, integration string) bool {
	_, ok := r.Resolve(ctx, tenantID, integration)
	return ok
}

var _ Resolver = (*StaticResolver)(nil)
