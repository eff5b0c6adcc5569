package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const reconcileLockTTL = 30 * time.Second

var reconcileLockRetry = redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20)

func reconcileLockKey(transactionId int) string {
	return fmt.Sprintf("reconcile:%d", transactionId)
}

// AcquireReconcileLock takes the per-transaction Redis lock.
// The lock is best-effort: when Redis is not ready or the lock cannot be
// obtained, the caller proceeds and the row lock + version check serialize it.
// The returned release func is never nil.
func AcquireReconcileLock(ctx context.Context, transactionId int) func() {
	logger := config.GetLogger()
	redisLock := config.GetRedisLock()
	fields := logrus.Fields{
		"field":          "AcquireReconcileLock",
		"transaction_id": transactionId,
	}
	if redisLock == nil {
		logger.WithFields(fields).Debug("redis lock not ready; proceeding without redis lock")
		return func() {}
	}

	lock, err := redisLock.Obtain(ctx, reconcileLockKey(transactionId), reconcileLockTTL, &redislock.Options{
		RetryStrategy: reconcileLockRetry,
	})
	if err == redislock.ErrNotObtained {
		logger.WithFields(fields).Warn("could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
			logger.WithFields(fields).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
