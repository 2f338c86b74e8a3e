// Package storage provides persistence for capacity plans and anomaly
// baselines. Plans are kept for audit and for the /plan/current API; the
// baseline is the one piece of cross-tick state worth surviving a restart,
// so warm starts skip the detector warmup.
package storage

import (
	"context"
	"time"

	"github.com/HatiCode/queuecap/pkg/baseline"
	"github.com/HatiCode/queuecap/pkg/capacity"
)

// PlanRecord is the persisted form of a generated capacity plan.
type PlanRecord struct {
	Queue           string          `json:"queue"`
	GeneratedAt     time.Time       `json:"generated_at"`
	CurrentWorkers  int             `json:"current_workers"`
	TargetWorkers   int             `json:"target_workers"`
	Steps           []capacity.Step `json:"steps"`
	Confidence      float64         `json:"confidence"`
	ConfidenceKnown bool            `json:"confidence_known"`
	CanAutoApply    bool            `json:"can_auto_apply"`
	Anomalous       bool            `json:"anomalous"`
	SLOAchievable   string          `json:"slo_achievable"`
	Rationale       string          `json:"rationale"`
	Warnings        []string        `json:"warnings,omitempty"`
}

type Store interface {
	PutPlan(ctx context.Context, rec PlanRecord) error
	LatestPlan(ctx context.Context, queue string) (PlanRecord, bool, error)
	PutBaseline(ctx context.Context, queue string, s baseline.State) error
	GetBaseline(ctx context.Context, queue string) (baseline.State, bool, error)
}
