// Package maintenance implements index optimization, cap enforcement,
// age-based purge, and size accounting (spec §4.6). Grounded on the
// teacher's internal/database/database.go Vacuum/Checkpoint/GetStats
// trio, generalized into a single run() record the caller can inspect
// without any step panicking the process.
package maintenance

import (
	"fmt"
	"time"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/logging"
)

var log = logging.GetLogger("maintenance")

// MaybeRunInterval is how long maybeRun waits between unattended runs.
const MaybeRunInterval = 7 * 24 * time.Hour

const lastMaintenanceKey = "last_maintenance"

// Maintainer performs the periodic upkeep operations against a store's
// underlying database.
type Maintainer struct {
	db          *database.DB
	maxMemories int
}

// New wires a Maintainer; maxMemories of 0 disables cap enforcement.
func New(db *database.DB, maxMemories int) *Maintainer {
	return &Maintainer{db: db, maxMemories: maxMemories}
}

// Report is the outcome of run(): each step fails independently and
// never aborts the remaining steps (spec §4.6).
type Report struct {
	OptimizeError  string
	PurgedCount    int
	PurgeError     string
	CapEnforced    int
	CapError       string
	SizeBytes      int64
	SizeError      string
}

// Optimize issues the full-text engine's optimize command.
func (m *Maintainer) Optimize() error {
	return m.db.Optimize()
}

// Vacuum reclaims free pages.
func (m *Maintainer) Vacuum() error {
	return m.db.Vacuum()
}

// Purge deletes memories older than olderThanDays that have never been
// accessed, per spec §4.6's purge(olderThanDays). Returns the count
// removed.
func (m *Maintainer) Purge(olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()
	result, err := m.db.Exec(
		`DELETE FROM memory WHERE time_created < ? AND access_count = 0 AND time_last_accessed IS NULL`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// EnforceCap deletes the least valuable rows (lowest access_count,
// then oldest) once total memory count exceeds the configured cap.
// Returns the count removed.
func (m *Maintainer) EnforceCap() (int, error) {
	if m.maxMemories <= 0 {
		return 0, nil
	}

	var total int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	if total <= m.maxMemories {
		return 0, nil
	}
	overflow := total - m.maxMemories

	result, err := m.db.Exec(`
		DELETE FROM memory WHERE id IN (
			SELECT id FROM memory ORDER BY access_count ASC, time_created ASC LIMIT ?
		)`, overflow)
	if err != nil {
		return 0, fmt.Errorf("enforce cap: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// sizeBytes reports the database's on-disk footprint via its stats.
func (m *Maintainer) sizeBytes() (int64, error) {
	stats, err := m.db.GetStats()
	if err != nil {
		return 0, err
	}
	return stats.SizeBytes, nil
}

// Run executes optimize, cap enforcement, and size accounting as one
// unit; each step's failure is recorded on the Report rather than
// propagated (spec §4.6 run()). Purge is opt-in via purgeOlderThanDays
// (0 = skip, matching the CLI's optional --purge-older-than flag).
func (m *Maintainer) Run(purgeOlderThanDays int) Report {
	var report Report

	if err := m.Optimize(); err != nil {
		report.OptimizeError = err.Error()
		log.Warn("optimize step failed", "error", err)
	}

	if purgeOlderThanDays > 0 {
		count, err := m.Purge(purgeOlderThanDays)
		report.PurgedCount = count
		if err != nil {
			report.PurgeError = err.Error()
			log.Warn("purge step failed", "error", err)
		}
	}

	capped, err := m.EnforceCap()
	report.CapEnforced = capped
	if err != nil {
		report.CapError = err.Error()
		log.Warn("cap enforcement step failed", "error", err)
	}

	size, err := m.sizeBytes()
	report.SizeBytes = size
	if err != nil {
		report.SizeError = err.Error()
		log.Warn("size accounting step failed", "error", err)
	}

	if err := m.db.SetMetadata(lastMaintenanceKey, fmt.Sprintf("%d", time.Now().Unix())); err != nil {
		log.Warn("failed to stamp last_maintenance", "error", err)
	}

	return report
}

// MaybeRun skips the run if the last unattended maintenance happened
// within MaybeRunInterval, otherwise runs and stamps the timestamp.
func (m *Maintainer) MaybeRun(purgeOlderThanDays int) (*Report, bool) {
	raw, ok := m.db.GetMetadata(lastMaintenanceKey)
	if ok {
		var last int64
		if _, err := fmt.Sscanf(raw, "%d", &last); err == nil {
			if time.Since(time.Unix(last, 0)) < MaybeRunInterval {
				return nil, false
			}
		}
	}
	report := m.Run(purgeOlderThanDays)
	return &report, true
}
