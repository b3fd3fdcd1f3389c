package workflow

import (
	"context"
	"sync"

	"github.com/Jnr-NKS/MCP-Chatbot/internal/llm"
	"github.com/Jnr-NKS/MCP-Chatbot/internal/session"
)

type fakeProvider struct {
	pingErr error
	sql     string
	genErr  error
	block   bool

	mu      sync.Mutex
	pings   []string
	reqs    []llm.Request
	entered chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Ping(ctx context.Context, key string) error {
	p.mu.Lock()
	p.pings = append(p.pings, key)
	p.mu.Unlock()
	if p.block {
		if p.entered != nil {
			close(p.entered)
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return p.pingErr
}

func (p *fakeProvider) GenerateSQL(_ context.Context, _ string, req llm.Request) (string, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	return p.sql, p.genErr
}

type queryFunc func(ctx context.Context, sql string) (string, error)

type fakeConn struct {
	mu     sync.Mutex
	query  queryFunc
	sqls   []string
	closed int
}

func (c *fakeConn) Query(ctx context.Context, sql string) (string, error) {
	c.mu.Lock()
	c.sqls = append(c.sqls, sql)
	q := c.query
	c.mu.Unlock()
	if q == nil {
		return "[]", nil
	}
	return q(ctx, sql)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeLauncher struct {
	mu       sync.Mutex
	conns    []*fakeConn
	connStrs []string
	err      error
	next     func() *fakeConn
}

func (l *fakeLauncher) launch(_ context.Context, connStr string) (session.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connStrs = append(l.connStrs, connStr)
	if l.err != nil {
		return nil, l.err
	}
	c := &fakeConn{}
	if l.next != nil {
		c = l.next()
	}
	l.conns = append(l.conns, c)
	return c, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connStrs)
}
