// Package restartlock implements the Restart Lock (spec.md §4.7): a
// commitment device that only releases after the machine has been
// rebooted a required number of times, tracked against the kernel's own
// boot-time sysctl so it cannot be defeated by sleep/wake cycles.
package restartlock

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/focusdragon/enforcer/internal/config"
)

// BootTime reads kern.boottime via sysctl and returns it as a Unix
// timestamp in seconds. unix.SysctlRaw is used instead of unix.Sysctl
// because the latter assumes a NUL-terminated string result, not a
// binary struct timeval.
func BootTime() (int64, error) {
	raw, err := unix.SysctlRaw("kern.boottime")
	if err != nil {
		return 0, fmt.Errorf("sysctl kern.boottime: %w", err)
	}
	if len(raw) < 8 {
		return 0, fmt.Errorf("sysctl kern.boottime: unexpected payload length %d", len(raw))
	}
	// struct timeval on darwin/amd64 and darwin/arm64 is two 8-byte
	// fields (tv_sec, tv_usec); only tv_sec is needed here.
	sec := int64(binary.LittleEndian.Uint64(raw[:8]))
	return sec, nil
}

// Evaluate reconciles a persisted record against the current boot time.
// A boot time change since the record was last written counts as one
// restart: RemainingRestarts is decremented and never goes below zero,
// and the lock becomes inactive once it reaches zero (spec.md invariant:
// "restart-lock monotonic decrement tied to kernel boot time changes
// only" — sleep/wake or daemon restarts without an actual reboot must
// never decrement it).
func Evaluate(rec *config.RestartLockRecord, currentBoot int64, now time.Time) (*config.RestartLockRecord, bool) {
	if rec == nil || !rec.IsActive {
		return rec, false
	}

	if rec.LastBootTime == 0 {
		updated := *rec
		updated.LastBootTime = currentBoot
		return &updated, true
	}

	if currentBoot == rec.LastBootTime {
		return rec, false
	}

	updated := *rec
	updated.LastBootTime = currentBoot
	if updated.RemainingRestarts > 0 {
		updated.RemainingRestarts--
	}
	if updated.RemainingRestarts <= 0 {
		updated.IsActive = false
	}
	return &updated, true
}

// Arm creates a fresh, active restart-lock record.
func Arm(requiredRestarts int, currentBoot int64, now time.Time) *config.RestartLockRecord {
	return &config.RestartLockRecord{
		IsActive:          true,
		RequiredRestarts:  requiredRestarts,
		RemainingRestarts: requiredRestarts,
		LastBootTime:      currentBoot,
		CreatedAt:         now.Unix(),
	}
}
