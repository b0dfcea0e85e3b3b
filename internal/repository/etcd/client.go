// Package etcd coordinates planner replicas: one leader runs the periodic
// loop and one-shot runs serialize on a lock.
package etcd

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/config"
)

const (
	sessionTTL    = 30 // seconds
	campaignRetry = 5 * time.Second
)

// Client holds an etcd session shared by the locks and elections of one
// planner process.
type Client struct {
	client  *clientv3.Client
	session *concurrency.Session
	logger  *zap.Logger
}

// NewClient connects to etcd and opens a session.
func NewClient(cfg config.EtcdConfig, logger *zap.Logger) (*Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithTTL(sessionTTL))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	logger = logger.With(zap.String("component", "etcd"))
	logger.Info("Connected to etcd", zap.Strings("endpoints", cfg.Endpoints))
	return &Client{client: client, session: session, logger: logger}, nil
}

// Close ends the session, releasing its locks and leadership, then closes
// the connection.
func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	return c.client.Close()
}

// =============================================================================
// Locking
// =============================================================================

// Lock is a held planning lock.
type Lock struct {
	mutex *concurrency.Mutex
}

// AcquireLock blocks until the lock called name is held or ctx is done.
func (c *Client) AcquireLock(ctx context.Context, name string) (*Lock, error) {
	mutex := concurrency.NewMutex(c.session, lockKey(name))
	if err := mutex.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	c.logger.Debug("Acquired lock", zap.String("name", name))
	return &Lock{mutex: mutex}, nil
}

// Unlock releases the lock. A nil lock is a no-op.
func (l *Lock) Unlock(ctx context.Context) error {
	if l == nil || l.mutex == nil {
		return nil
	}
	return l.mutex.Unlock(ctx)
}

// =============================================================================
// Leader Election
// =============================================================================

// Leader tracks whether this process leads the election it campaigns in.
type Leader struct {
	election *concurrency.Election
	session  *concurrency.Session
	name     string
	logger   *zap.Logger
	elected  atomic.Bool
}

// CampaignForLeader joins the election called name. The campaign runs in
// the background until ctx is done or the session expires.
func (c *Client) CampaignForLeader(ctx context.Context, name string) *Leader {
	l := &Leader{
		election: concurrency.NewElection(c.session, electionKey(name)),
		session:  c.session,
		name:     name,
		logger:   c.logger.With(zap.String("election", name)),
	}
	go l.campaign(ctx)
	return l
}

func (l *Leader) campaign(ctx context.Context) {
	value := strconv.FormatInt(int64(l.session.Lease()), 16)
	for {
		err := l.election.Campaign(ctx, value)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("Leader campaign failed, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(campaignRetry):
		}
	}

	l.elected.Store(true)
	l.logger.Info("Became leader")

	select {
	case <-ctx.Done():
	case <-l.session.Done():
		l.elected.Store(false)
		l.logger.Warn("Lost leadership, session expired")
	}
}

// IsLeader reports whether this process currently leads.
func (l *Leader) IsLeader() bool {
	return l.elected.Load()
}

// Resign gives up leadership. It is a no-op when not elected.
func (l *Leader) Resign(ctx context.Context) error {
	if l.election == nil || !l.elected.Load() {
		return nil
	}
	if err := l.election.Resign(ctx); err != nil {
		return fmt.Errorf("failed to resign from %s: %w", l.name, err)
	}
	l.elected.Store(false)
	l.logger.Info("Resigned from leadership")
	return nil
}

func lockKey(name string) string {
	return "/reconf/locks/" + name
}

func electionKey(name string) string {
	return "/reconf/leaders/" + name
}
