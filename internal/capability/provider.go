package capability

import "context"

// Request is one operation an action node asks the environment to perform.
// Target is a connection string for database operations and a URL for http.
type Request struct {
	Operation string
	Target    string
	Statement string
	Method    string
	Headers   map[string]string
	Payload   map[string]any
}

// Result carries whatever the environment produced, shaped for the run
// context so later nodes can reference it by path.
type Result struct {
	Data map[string]any
}

// Provider executes environment-touching operations on behalf of action
// nodes. Implementations must be safe for concurrent use; the engine calls
// one Provider from every worker.
type Provider interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

const (
	OpDiscover = "discover"
	OpSimulate = "simulate"
	OpApply    = "apply"
	OpRevert   = "revert"
	OpQuery    = "query"
	OpHTTP     = "http"
)

// Router dispatches requests to the database or HTTP provider by operation.
type Router struct {
	SQL  Provider
	HTTP Provider
}

func (r *Router) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Operation == OpHTTP {
		return r.HTTP.Execute(ctx, req)
	}
	return r.SQL.Execute(ctx, req)
}
