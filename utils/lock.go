package utils

import (
	"path/filepath"
	"time"

	"github.com/warden-shared/warden-engine/logger"
	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
)

// 每次取锁时重建 locker，锁目录跟着数据目录走
func jobLocker() (lockgate.Locker, error) {
	locker, err := file_locker.NewFileLocker(filepath.Join(DefaultConfigDir(), "locks"))
	if err != nil {
		logger.Errorf("cannot initialize file locker: %s", err)
		return nil, err
	}
	return locker, nil
}

// LockJob 同名 job 的 run 串行化，阻塞等待
func LockJob(name string) (*lockgate.LockHandle, error) {
	l, err := jobLocker()
	if err != nil {
		return nil, err
	}
	_, lock, err := l.Acquire(jobLockName(name), lockgate.AcquireOptions{Shared: false, Timeout: 30 * time.Minute})
	if err != nil {
		logger.Errorf("failed to lock job %s: %s", name, err)
		return nil, err
	}
	return &lock, nil
}

func UnlockJob(lock *lockgate.LockHandle) error {
	l, err := jobLocker()
	if err != nil {
		return err
	}
	return l.Release(*lock)
}

func jobLockName(name string) string {
	return "job-" + name
}
