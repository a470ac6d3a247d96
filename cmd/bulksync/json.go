package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bulksync/bulksync/pkg/planner"
	"github.com/bulksync/bulksync/pkg/report"
)

// PlanResult is the machine-readable form of a plan.
type PlanResult struct {
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Action string `json:"action"` // "upload", "reupload", "skip"
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type PlanSummary struct {
	Upload   int `json:"upload"`
	Reupload int `json:"reupload"`
	Skip     int `json:"skip"`
}

// SyncResult is the machine-readable form of a run summary.
type SyncResult struct {
	Summary  ResultSummary    `json:"summary"`
	Failures []report.Failure `json:"failures"`
}

type ResultSummary struct {
	Uploaded         int    `json:"uploaded"`
	Skipped          int    `json:"skipped"`
	Failed           int    `json:"failed"`
	Retried          int    `json:"retried"`
	BytesTransferred int64  `json:"bytes_transferred"`
	Elapsed          string `json:"elapsed"`
}

func writePlanJSON(path string, operations []planner.Operation) error {
	plan := PlanResult{Files: []PlanFile{}}

	for _, op := range operations {
		plan.Files = append(plan.Files, PlanFile{
			Action: string(op.Action),
			Source: op.Unit.LocalPath,
			Target: op.Unit.Path,
			Reason: op.Reason,
		})
		switch op.Action {
		case planner.ActionUpload:
			plan.Summary.Upload++
		case planner.ActionReupload:
			plan.Summary.Reupload++
		case planner.ActionSkip:
			plan.Summary.Skip++
		}
	}

	return writeJSON(path, plan)
}

func writeResultJSON(path string, summary report.Summary) error {
	result := SyncResult{
		Summary: ResultSummary{
			Uploaded:         summary.Uploaded,
			Skipped:          summary.Skipped,
			Failed:           summary.Failed,
			Retried:          summary.Retried,
			BytesTransferred: summary.BytesTransferred,
			Elapsed:          summary.Elapsed.Round(time.Millisecond).String(),
		},
		Failures: summary.Failures,
	}
	if result.Failures == nil {
		result.Failures = []report.Failure{}
	}

	return writeJSON(path, result)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
