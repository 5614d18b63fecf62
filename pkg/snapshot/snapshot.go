// Package snapshot builds the publishable summary of a benchmark run. A
// snapshot carries a content hash over its headline numbers so a consumer
// can detect edited results.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// Snapshot is the summary of one benchmark run
type Snapshot struct {
	ID          string    `json:"id"`
	SkillID     string    `json:"skillId"`
	Model       string    `json:"model"`
	Runs        int       `json:"runs"`
	Accuracy    float64   `json:"accuracy"`
	TokensTotal int       `json:"tokensTotal"`
	CostUSD     float64   `json:"costUsd"`
	PassRate    float64   `json:"passRate"`
	Timestamp   time.Time `json:"timestamp"`
	ContentHash string    `json:"contentHash"`

	// Optional scores, nil when the run had no such tests
	SecurityScore    *float64 `json:"securityScore,omitempty"`
	TriggerScore     *float64 `json:"triggerScore,omitempty"`
	ConsistencyScore *float64 `json:"consistencyScore,omitempty"`
	TokenReduction   *float64 `json:"tokenReduction,omitempty"`
}

// hashed is the canonical content covered by the hash. Field order is
// fixed by the struct so the encoding is stable.
type hashed struct {
	SkillID     string  `json:"skillId"`
	Model       string  `json:"model"`
	Runs        int     `json:"runs"`
	Accuracy    float64 `json:"accuracy"`
	TokensTotal int     `json:"tokensTotal"`
	Timestamp   string  `json:"timestamp"`
}

// New summarizes a report into a snapshot with a fresh id and content hash
func New(r *bench.Report) (*Snapshot, error) {
	if r == nil {
		return nil, errors.New("no report to snapshot")
	}

	s := &Snapshot{
		ID:          uuid.NewString(),
		SkillID:     r.SkillID,
		Model:       r.Model,
		Runs:        r.Runs,
		Accuracy:    r.Metrics.Accuracy,
		TokensTotal: r.Metrics.TokensTotal,
		CostUSD:     r.Metrics.CostUSD,
		PassRate:    r.PassRate,
		Timestamp:   r.Timestamp.UTC().Truncate(time.Millisecond),
	}
	if r.Security != nil {
		s.SecurityScore = &r.Security.SecurityScore
	}
	if r.Trigger != nil {
		s.TriggerScore = &r.Trigger.TriggerScore
	}
	if r.Consistency != nil {
		s.ConsistencyScore = &r.Consistency.ConsistencyScore
	}
	if r.Baseline != nil && len(r.Baseline.Tests) > 0 {
		s.TokenReduction = &r.Baseline.AggregatedDelta.TokenReduction
	}

	hash, err := ContentHash(s)
	if err != nil {
		return nil, err
	}
	s.ContentHash = hash
	return s, nil
}

// ContentHash returns the hex SHA-256 of the snapshot's canonical content
func ContentHash(s *Snapshot) (string, error) {
	data, err := json.Marshal(hashed{
		SkillID:     s.SkillID,
		Model:       s.Model,
		Runs:        s.Runs,
		Accuracy:    s.Accuracy,
		TokensTotal: s.TokensTotal,
		Timestamp:   s.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode snapshot content")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the snapshot's hash matches its content
func Verify(s *Snapshot) bool {
	if s == nil || s.ContentHash == "" {
		return false
	}
	hash, err := ContentHash(s)
	return err == nil && hash == s.ContentHash
}
