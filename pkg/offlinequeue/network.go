// Package offlinequeue drains the persisted offline_operations table against
// the remote sync endpoint, honoring the device's current network
// conditions and a bounded retry/eviction policy.
package offlinequeue

import "github.com/ghanavoice/ledger/pkg/store"

// NetworkQuality is a coarse signal reported by the platform's connectivity
// monitor, ranked worst to best.
type NetworkQuality string

const (
	QualityPoor      NetworkQuality = "POOR"
	QualityFair      NetworkQuality = "FAIR"
	QualityGood      NetworkQuality = "GOOD"
	QualityExcellent NetworkQuality = "EXCELLENT"
)

// NetworkStatus is the connectivity snapshot the worker reassesses on each
// poll tick.
type NetworkStatus struct {
	Available bool
	Metered   bool
	Quality   NetworkQuality
}

// SyncStrategy gates which operation priorities the worker is allowed to
// send on the current connection.
type SyncStrategy string

const (
	StrategyOfflineOnly  SyncStrategy = "OFFLINE_ONLY"
	StrategyCriticalOnly SyncStrategy = "CRITICAL_ONLY"
	StrategyMinimalSync  SyncStrategy = "MINIMAL_SYNC"
	StrategyNormalSync   SyncStrategy = "NORMAL_SYNC"
	StrategyFullSync     SyncStrategy = "FULL_SYNC"
)

// DetermineStrategy maps a NetworkStatus to a SyncStrategy: no connection
// stays fully offline, a poor connection moves only CRITICAL work, a
// metered connection caps out at CRITICAL+HIGH regardless of quality, and
// an unmetered connection scales up to NORMAL or FULL sync with quality.
func DetermineStrategy(s NetworkStatus) SyncStrategy {
	if !s.Available {
		return StrategyOfflineOnly
	}
	if s.Quality == QualityPoor {
		return StrategyCriticalOnly
	}
	if s.Metered {
		return StrategyMinimalSync
	}
	switch s.Quality {
	case QualityExcellent:
		return StrategyFullSync
	case QualityGood:
		return StrategyNormalSync
	default: // Fair, unmetered
		return StrategyMinimalSync
	}
}

// AllowsPriority reports whether strategy permits sending an operation of
// the given priority.
func AllowsPriority(strategy SyncStrategy, priority store.OperationPriority) bool {
	switch strategy {
	case StrategyOfflineOnly:
		return false
	case StrategyCriticalOnly:
		return priority == store.PriorityCritical
	case StrategyMinimalSync:
		return priority == store.PriorityCritical || priority == store.PriorityHigh
	case StrategyNormalSync:
		return priority != store.PriorityLow
	case StrategyFullSync:
		return true
	default:
		return false
	}
}
