package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker monitors database connection health. Reconnecting is left
// to the sql.DB pool; the checker only tracks the outcome of pings.
type HealthChecker struct {
	db            *sql.DB
	checkInterval time.Duration
	logger        *logrus.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	mu            sync.RWMutex
	isHealthy     bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, checkInterval time.Duration, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:            db,
		checkInterval: checkInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
		isHealthy:     true,
	}
}

// Start begins monitoring the database connection
func (chc *HealthChecker) Start() {
	ticker := time.NewTicker(chc.checkInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-chc.stopChan:
				return
			case <-ticker.C:
				chc.checkConnection()
			}
		}
	}()
}

// Stop stops monitoring the database connection
func (chc *HealthChecker) Stop() {
	chc.stopOnce.Do(func() { close(chc.stopChan) })
}

func (chc *HealthChecker) checkConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := chc.db.PingContext(ctx)

	chc.mu.Lock()
	defer chc.mu.Unlock()

	if err != nil {
		if chc.isHealthy {
			chc.logger.WithError(err).Error("Database health check failed")
		}
		chc.isHealthy = false
		return
	}

	if !chc.isHealthy {
		chc.logger.Info("Database connection restored")
	}
	chc.isHealthy = true
}

// IsHealthy returns the current health status of the connection
func (chc *HealthChecker) IsHealthy() bool {
	chc.mu.RLock()
	defer chc.mu.RUnlock()
	return chc.isHealthy
}

// EnsureConnection pings the database before a query. A failed ping
// marks the connection unhealthy until the next successful check.
func (chc *HealthChecker) EnsureConnection(ctx context.Context) error {
	if !chc.IsHealthy() {
		return ErrUnhealthy
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := chc.db.PingContext(pingCtx); err != nil {
		chc.mu.Lock()
		chc.isHealthy = false
		chc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	return nil
}
