package app

import "aptly-reconcile/internal/types"

// Task selects between the create and update plan of an entity kind.
type Task string

const (
	TaskCreate Task = "create"
	TaskUpdate Task = "update"
)

// AllNames selects every declared entry of a kind.
const AllNames = "all"

type ReconcileRequest struct {
	ConfigPath string
	Task       Task
	Name       string
	Pretend    bool
	GraphPath  string
}

type ReconcileResult struct {
	Commands []string
	Plan     string
	Executed int
	Pretend  bool
	Summary  string
}

type PruneRequest struct {
	KeepLast int
	KeepDays int
	DryRun   bool
	Pretend  bool
}

type PruneResult struct {
	KeepCount   int
	DeleteCount int
	Deleted     []string
	DryRun      bool
}

type StateResult struct {
	State types.BackendState
}

type ConvertRequest struct {
	InputPath   string
	OutputPath  string
	AddDefaults bool
}

type ConvertResult struct {
	OutputPath string
}
