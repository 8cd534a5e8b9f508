package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGCache implements Cache using the analysis_reports table.
type PGCache struct {
	DB *sql.DB
}

// Get loads a cached report.
func (c *PGCache) Get(ctx context.Context, sessionID string) (Report, bool, error) {
	const query = `SELECT report FROM analysis_reports WHERE session_id = $1`
	var raw []byte
	if err := c.DB.QueryRowContext(ctx, query, sessionID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, false, nil
		}
		return Report{}, false, err
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false, fmt.Errorf("decode cached report %s: %w", sessionID, err)
	}
	return report, true, nil
}

// Put inserts a report under sessionID; an existing row for the session is kept.
func (c *PGCache) Put(ctx context.Context, sessionID string, report Report) error {
	const query = `
INSERT INTO analysis_reports (session_id, proposal_id, status, total_issues, report)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id) DO NOTHING`
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = c.DB.ExecContext(ctx, query,
		sessionID,
		report.ProposalID,
		string(report.Status),
		report.Summary.TotalIssues,
		payload,
	)
	return err
}

// Delete removes a cached report.
func (c *PGCache) Delete(ctx context.Context, sessionID string) error {
	_, err := c.DB.ExecContext(ctx, `DELETE FROM analysis_reports WHERE session_id = $1`, sessionID)
	return err
}
