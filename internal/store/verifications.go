package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/trust"
)

// OutcomeTrusted marks an attempt that produced ground truth. Failed attempts
// carry their trust.Kind instead.
const OutcomeTrusted = "trusted"

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Verification is one recorded verify attempt.
type Verification struct {
	ID          int64     `json:"id"`
	Enclave     string    `json:"enclave"`
	Repo        string    `json:"repo"`
	Digest      string    `json:"digest,omitempty"`
	Measurement string    `json:"measurement,omitempty"`
	PublicKeyFP string    `json:"public_key_fp,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trusted reports whether the attempt produced ground truth.
func (v *Verification) Trusted() bool { return v.Outcome == OutcomeTrusted }

// GroundTruth returns the recorded binding.
func (v *Verification) GroundTruth() trust.GroundTruth {
	return trust.GroundTruth{PublicKeyFP: v.PublicKeyFP, Measurement: v.Measurement}
}

// NewVerification builds the record of an attempt. A nil err means the
// attempt was trusted.
func NewVerification(enclave, repo, digest string, gt trust.GroundTruth, err error, d time.Duration) *Verification {
	v := &Verification{
		Enclave:    enclave,
		Repo:       repo,
		Digest:     digest,
		DurationMS: d.Milliseconds(),
	}
	if err != nil {
		v.Outcome = string(trust.KindOf(err))
		v.Error = err.Error()
		return v
	}
	v.Outcome = OutcomeTrusted
	v.Measurement = gt.Measurement
	v.PublicKeyFP = gt.PublicKeyFP
	return v
}

// ListFilter narrows ListVerifications. Empty fields match everything.
type ListFilter struct {
	Enclave string
	Repo    string
	Limit   int
}

// RecordVerification inserts v and sets its ID.
func (s *Store) RecordVerification(v *Verification) error {
	res, err := s.db.Exec(
		`INSERT INTO verifications (enclave, repo, digest, measurement, public_key_fp, outcome, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Enclave, v.Repo, v.Digest, v.Measurement, v.PublicKeyFP, v.Outcome, v.Error, v.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	v.ID = id
	return nil
}

// ListVerifications returns the most recent attempts first.
func (s *Store) ListVerifications(f ListFilter) ([]Verification, error) {
	var (
		where []string
		args  []any
	)
	if f.Enclave != "" {
		where = append(where, "enclave = ?")
		args = append(args, f.Enclave)
	}
	if f.Repo != "" {
		where = append(where, "repo = ?")
		args = append(args, f.Repo)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := `SELECT id, enclave, repo, digest, measurement, public_key_fp, outcome, error, duration_ms, created_at
		 FROM verifications`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []Verification
	for rows.Next() {
		var v Verification
		if err := scanVerification(rows, &v); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestTrusted returns the newest trusted attempt for enclave and repo, or
// nil if there is none.
func (s *Store) LatestTrusted(enclave, repo string) (*Verification, error) {
	v := &Verification{}
	row := s.db.QueryRow(
		`SELECT id, enclave, repo, digest, measurement, public_key_fp, outcome, error, duration_ms, created_at
		 FROM verifications WHERE enclave = ? AND repo = ? AND outcome = ?
		 ORDER BY id DESC LIMIT 1`,
		enclave, repo, OutcomeTrusted,
	)
	err := scanVerification(row, v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest trusted verification: %w", err)
	}
	return v, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVerification(sc scanner, v *Verification) error {
	return sc.Scan(&v.ID, &v.Enclave, &v.Repo, &v.Digest, &v.Measurement, &v.PublicKeyFP,
		&v.Outcome, &v.Error, &v.DurationMS, &v.CreatedAt)
}
