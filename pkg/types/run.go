// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunState is a pipeline stage boundary. A run only moves forward.
type RunState string

const (
	StateInit            RunState = "init"
	StateRulesLoaded     RunState = "rules_loaded"
	StateClassified      RunState = "classified"
	StateHeadersInjected RunState = "headers_injected"
	StatePackaged        RunState = "packaged"
	StateDone            RunState = "done"
)

// OutcomeStatus is the result of processing one rule.
type OutcomeStatus string

const (
	OutcomeStaged  OutcomeStatus = "staged"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// RuleOutcome records what happened to a single rule during a run.
type RuleOutcome struct {
	Rule   string        `json:"rule" yaml:"rule"`
	Target string        `json:"target" yaml:"target"`
	Status OutcomeStatus `json:"status" yaml:"status"`

	// Source names the source directory the match came from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Matches lists the source filenames copied for this rule, in copy
	// order. With LastMatchWins the final entry is the one staged.
	Matches []string `json:"matches,omitempty" yaml:"matches,omitempty"`

	HeaderInjected bool   `json:"header_injected" yaml:"header_injected"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunSummary is the structured report for one pipeline run.
type RunSummary struct {
	ID         string        `json:"id" yaml:"id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	State      RunState      `json:"state" yaml:"state"`
	Sources    []string      `json:"sources,omitempty" yaml:"sources,omitempty"`
	Outcomes   []RuleOutcome `json:"outcomes" yaml:"outcomes"`
	Warnings   []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Bundle     string        `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Entries    int           `json:"entries" yaml:"entries"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Matched returns the number of rules with a staged file.
func (s RunSummary) Matched() int { return s.count(OutcomeStaged) }

// Skipped returns the number of rules that matched no source file.
func (s RunSummary) Skipped() int { return s.count(OutcomeSkipped) }

// Failed returns the number of rules whose copy or header step failed.
func (s RunSummary) Failed() int { return s.count(OutcomeFailed) }

func (s RunSummary) count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
