package capability

import (
	"context"
	"sync"
)

// SimulationProvider answers every request from canned data without touching
// any environment. Test runs use it so trying a workflow against sample
// input cannot change a target system.
type SimulationProvider struct {
	mu       sync.Mutex
	requests []Request

	// Responses maps operation name to the data returned for it. Unlisted
	// operations get a generic simulated payload.
	Responses map[string]map[string]any
}

func NewSimulationProvider() *SimulationProvider {
	return &SimulationProvider{}
}

func (p *SimulationProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	canned := p.Responses[req.Operation]
	p.mu.Unlock()

	if canned != nil {
		return &Result{Data: canned}, nil
	}

	data := map[string]any{"simulated": true, "operation": req.Operation}
	switch req.Operation {
	case OpQuery:
		data["rows"] = []any{}
		data["count"] = 0
	case OpDiscover:
		data["tables"] = []any{}
		data["count"] = 0
	case OpHTTP:
		data["status"] = 200
	default:
		data["rowsAffected"] = int64(0)
	}
	return &Result{Data: data}, nil
}

// Requests returns every request seen so far.
func (p *SimulationProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}
