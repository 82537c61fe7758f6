package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemGateway is an in-memory Client for tests and offline use.
type MemGateway struct {
	mu       sync.Mutex
	gateways map[string]map[string]*Attachment
	now      func() time.Time
}

// NewMemGateway creates an in-memory gateway store holding the named
// gateways, each starting with no attachments.
func NewMemGateway(gatewayIDs ...string) *MemGateway {
	g := &MemGateway{
		gateways: make(map[string]map[string]*Attachment),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, id := range gatewayIDs {
		g.gateways[id] = make(map[string]*Attachment)
	}
	return g
}

func (g *MemGateway) gateway(gatewayID string) (map[string]*Attachment, error) {
	gw, ok := g.gateways[gatewayID]
	if !ok {
		return nil, fmt.Errorf("%w: gateway %q: %w", ErrRemote, gatewayID, ErrNotFound)
	}
	return gw, nil
}

func (g *MemGateway) Attach(ctx context.Context, gatewayID, name, secretID string) (Action, *Attachment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gw, err := g.gateway(gatewayID)
	if err != nil {
		return "", nil, err
	}

	action := ActionAdded
	if _, ok := gw[name]; ok {
		action = ActionUpdated
	}
	att := &Attachment{
		Name:              name,
		SecretID:          secretID,
		ProvisioningState: "Succeeded",
		Updated:           g.now(),
	}
	gw[name] = att
	out := *att
	return action, &out, nil
}

func (g *MemGateway) List(ctx context.Context, gatewayID string) ([]Attachment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gw, err := g.gateway(gatewayID)
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(gw))
	for _, att := range gw {
		out = append(out, *att)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *MemGateway) Get(ctx context.Context, gatewayID, name string) (*Attachment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gw, err := g.gateway(gatewayID)
	if err != nil {
		return nil, err
	}
	att, ok := gw[name]
	if !ok {
		return nil, fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	out := *att
	return &out, nil
}

func (g *MemGateway) Remove(ctx context.Context, gatewayID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	gw, err := g.gateway(gatewayID)
	if err != nil {
		return err
	}
	if _, ok := gw[name]; !ok {
		return fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	delete(gw, name)
	return nil
}
