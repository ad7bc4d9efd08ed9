package sqlite

import (
	"fmt"

	"videocounter/internal/model"
)

// FrameRepository implements repository.FrameCountRepository for SQLite.
type FrameRepository struct {
	db *DB
}

// NewFrameRepository creates a new SQLite frame-count repository.
func NewFrameRepository(db *DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// InsertBatch adds the counts of several frames in a single transaction.
// Re-inserting a frame replaces it.
func (r *FrameRepository) InsertBatch(jobID string, counts []model.FrameCount) error {
	if len(counts) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	frameStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO frames (job_id, frame_index, total)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer frameStmt.Close()

	classStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO frame_classes (job_id, frame_index, label, count)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer classStmt.Close()

	for _, fc := range counts {
		if _, err := frameStmt.Exec(jobID, fc.FrameIndex, fc.Total); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", fc.FrameIndex, err)
		}
		for label, n := range fc.PerClass {
			if _, err := classStmt.Exec(jobID, fc.FrameIndex, label, n); err != nil {
				return fmt.Errorf("failed to insert count of %s in frame %d: %w", label, fc.FrameIndex, err)
			}
		}
	}

	return tx.Commit()
}

// GetByJobID returns the stored frames of a job in frame order.
func (r *FrameRepository) GetByJobID(jobID string) ([]model.FrameCount, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT f.frame_index, f.total, c.label, c.count
		FROM frames f
		LEFT JOIN frame_classes c ON c.job_id = f.job_id AND c.frame_index = f.frame_index
		WHERE f.job_id = ?
		ORDER BY f.frame_index, c.label
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var counts []model.FrameCount
	for rows.Next() {
		var (
			index, total int
			label        *string
			n            *int
		)
		if err := rows.Scan(&index, &total, &label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		if len(counts) == 0 || counts[len(counts)-1].FrameIndex != index {
			counts = append(counts, model.FrameCount{FrameIndex: index, Total: total, PerClass: map[string]int{}})
		}
		if label != nil && n != nil {
			counts[len(counts)-1].PerClass[*label] = *n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	return counts, nil
}

// GetClassTotals sums the stored per-class counts of a job.
func (r *FrameRepository) GetClassTotals(jobID string) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT label, SUM(count) FROM frame_classes WHERE job_id = ? GROUP BY label
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query class totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			label string
			sum   int
		)
		if err := rows.Scan(&label, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan class total: %w", err)
		}
		totals[label] = sum
	}

	return totals, rows.Err()
}

// CountFrames returns how many frames of a job are stored.
func (r *FrameRepository) CountFrames(jobID string) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var n int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM frames WHERE job_id = ?`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}

// DeleteByJobID removes every stored frame of a job.
func (r *FrameRepository) DeleteByJobID(jobID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM frame_classes WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete frame classes: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM frames WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	return nil
}
