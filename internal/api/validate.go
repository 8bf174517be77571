package api

import (
	"fmt"

	"vrpspd/internal/model"
	"vrpspd/internal/oracle"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if (req.Instance == nil) == (req.InstanceName == "") {
		return fmt.Errorf("exactly one of instance and instanceName is required")
	}
	if req.Oracle != "" && !oracle.Available(req.Oracle) {
		return fmt.Errorf("invalid oracle: %s (available: %v)", req.Oracle, oracle.Names())
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.SubproblemBudgetMs < 0 {
		return fmt.Errorf("subproblemBudgetMs must be >= 0")
	}
	if req.MaxRounds < 0 {
		return fmt.Errorf("maxRounds must be >= 0")
	}
	return nil
}

// validateOptimizerConfig checks a stored default override.
func validateOptimizerConfig(cfg map[string]any) error {
	for k, v := range cfg {
		switch k {
		case "oracle":
			name, ok := v.(string)
			if !ok || !oracle.Available(name) {
				return fmt.Errorf("invalid oracle: %v", v)
			}
		case "timeBudgetMs", "subproblemBudgetMs", "maxRounds":
			n, ok := number(v)
			if !ok || n < 0 {
				return fmt.Errorf("%s must be a number >= 0", k)
			}
		case "seed":
			if _, ok := number(v); !ok {
				return fmt.Errorf("seed must be a number")
			}
		default:
			return fmt.Errorf("unknown key: %s (allowed: oracle,timeBudgetMs,subproblemBudgetMs,maxRounds,seed)", k)
		}
	}
	return nil
}
