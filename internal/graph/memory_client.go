package graph

import (
	"context"
	"strings"
	"sync"
)

// Responder builds a canned result from the statement parameters.
type Responder func(params map[string]any) (Result, error)

type route struct {
	fragment string
	respond  Responder
}

// MemoryClient is an in-memory Client for tests. Statements are answered by the
// first route whose fragment occurs in the cypher text, then by queued results
// in FIFO order, then with an empty result.
type MemoryClient struct {
	mu           sync.Mutex
	writeCalls   []ExecutedQuery
	readCalls    []ExecutedQuery
	readResults  []Result
	writeResults []Result
	readRoutes   []route
	writeRoutes  []route
	err          error
	connectivity error
}

// ExecutedQuery captures a cypher statement and parameters executed against the graph.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// WithError makes every subsequent statement fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// OnRead answers reads containing fragment. Safe for concurrent statements.
func (m *MemoryClient) OnRead(fragment string, respond Responder) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readRoutes = append(m.readRoutes, route{fragment: fragment, respond: respond})
	return m
}

// OnWrite answers writes containing fragment.
func (m *MemoryClient) OnWrite(fragment string, respond Responder) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeRoutes = append(m.writeRoutes, route{fragment: fragment, respond: respond})
	return m
}

// PushReadResult queues a result for the next unrouted read.
func (m *MemoryClient) PushReadResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readResults = append(m.readResults, res)
}

// PushWriteResult queues a result for the next unrouted write.
func (m *MemoryClient) PushWriteResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeResults = append(m.writeResults, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.writeCalls = append(m.writeCalls, ExecutedQuery{Query: cypher, Params: cloneMap(params)})
	return answer(cypher, params, m.writeRoutes, &m.writeResults)
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.readCalls = append(m.readCalls, ExecutedQuery{Query: cypher, Params: cloneMap(params)})
	return answer(cypher, params, m.readRoutes, &m.readResults)
}

func answer(cypher string, params map[string]any, routes []route, queued *[]Result) (Result, error) {
	for _, r := range routes {
		if strings.Contains(cypher, r.fragment) {
			return r.respond(params)
		}
	}
	if len(*queued) == 0 {
		return Result{}, nil
	}
	res := (*queued)[0]
	*queued = (*queued)[1:]
	return res, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// WriteCalls returns a snapshot of executed write queries.
func (m *MemoryClient) WriteCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.writeCalls...)
}

// ReadCalls returns a snapshot of executed read queries.
func (m *MemoryClient) ReadCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.readCalls...)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
