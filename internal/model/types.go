package model

import "time"

// Wire types shared by the exporter, the store and the HTTP API.

// Snapshot kinds.
const (
	KindConstruct   = "construct"
	KindOracle      = "oracle"
	KindLocalSearch = "local_search"
	KindBest        = "best"
)

// Run states.
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// Snapshot is the exported view of one solution found during a run.
// Costs are already divided by the instance cost divisor.
type Snapshot struct {
	RunID       string    `json:"runId,omitempty"`
	Instance    string    `json:"instance"`
	Round       int       `json:"round"`
	Kind        string    `json:"kind"`
	BestCost    float64   `json:"bestCost"`
	TotalCost   float64   `json:"totalCost"`
	LowerBound  float64   `json:"lowerBound"`
	Gap         float64   `json:"gap"`
	Status      string    `json:"status"`
	CreationSec float64   `json:"creationSec"`
	SolvingSec  float64   `json:"solvingSec"`
	ProcessSec  float64   `json:"processSec"`
	CliqueSize  int       `json:"cliqueSize"`
	Routes      [][]int   `json:"routes"` // each bracketed by the depot id
	CreatedAt   time.Time `json:"createdAt"`
}

// RunSummary holds the counters reported when a run finishes.
type RunSummary struct {
	BestCost      float64 `json:"bestCost"`
	ProcessSec    float64 `json:"processSec"`
	TimeToBestSec float64 `json:"timeToBestSec"`
	Rounds        int     `json:"rounds"`
	RoundToBest   int     `json:"roundToBest"`
	Improvements  int     `json:"improvements"`
	CliqueSize    int     `json:"cliqueSize"`
}

// Run is one execution of the search on one instance.
type Run struct {
	ID                 string      `json:"id"`
	Instance           string      `json:"instance"`
	Status             string      `json:"status"`
	Error              string      `json:"error,omitempty"`
	Oracle             string      `json:"oracle"`
	Seed               int64       `json:"seed"`
	TimeBudgetMs       int64       `json:"timeBudgetMs"`
	SubproblemBudgetMs int64       `json:"subproblemBudgetMs"`
	StartedAt          time.Time   `json:"startedAt"`
	FinishedAt         *time.Time  `json:"finishedAt,omitempty"`
	Summary            *RunSummary `json:"summary,omitempty"`
}

// NodeSpec is a node as written in instance files and API requests.
// Coordinates are only used when no distance matrix is supplied.
type NodeSpec struct {
	ID       int     `json:"id" yaml:"id"`
	X        float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y        float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Pickup   int     `json:"pickup" yaml:"pickup"`
	Delivery int     `json:"delivery" yaml:"delivery"`
}

// InstanceSpec is the serializable form of an instance.
type InstanceSpec struct {
	Name      string      `json:"name" yaml:"name"`
	Capacity  int         `json:"capacity" yaml:"capacity"`
	Nodes     []NodeSpec  `json:"nodes" yaml:"nodes"`
	Distances [][]float64 `json:"distances,omitempty" yaml:"distances,omitempty"`
}

// SolveRequest starts a run through the HTTP API.
type SolveRequest struct {
	InstanceName       string        `json:"instanceName,omitempty"`
	Instance           *InstanceSpec `json:"instance,omitempty"`
	TimeBudgetMs       int64         `json:"timeBudgetMs,omitempty"`
	SubproblemBudgetMs int64         `json:"subproblemBudgetMs,omitempty"`
	Seed               int64         `json:"seed,omitempty"`
	Oracle             string        `json:"oracle,omitempty"`
	MaxRounds          int           `json:"maxRounds,omitempty"`
}
