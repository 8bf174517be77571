//go:build highs

package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nextmv-io/sdk/mip"
	log "github.com/sirupsen/logrus"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

const highsBuilt = true

func newHighs(in *model.Instance, logger log.FieldLogger) opt.Oracle { return NewHighs(in, logger) }

// Highs solves the subproblem as a two-commodity flow MIP with the HiGHS
// solver provider of the nextmv SDK.
type Highs struct {
	in  *model.Instance
	log log.FieldLogger
}

// NewHighs returns a MIP oracle for in.
func NewHighs(in *model.Instance, logger log.FieldLogger) *Highs {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Highs{in: in, log: logger.WithField("oracle", NameHighs)}
}

// arcVars are the decision variables of one allowed link.
type arcVars struct {
	link     model.Link
	x        mip.Bool
	delivery mip.Float
	pickup   mip.Float
}

// formulation builds the model over links. Every client must be entered
// and left exactly once; delivery flow leaves the depot carrying every
// delivery and pickup flow brings every pickup back.
func (h *Highs) formulation(links []model.Link) (mip.Model, []arcVars) {
	in := h.in
	capacity := float64(in.Capacity)
	m := mip.NewModel()
	m.Objective().SetMinimize()

	vars := make([]arcVars, 0, len(links))
	for _, l := range links {
		if l.From == l.To {
			continue
		}
		vars = append(vars, arcVars{
			link:     l,
			x:        m.NewBool(),
			delivery: m.NewFloat(0, capacity),
			pickup:   m.NewFloat(0, capacity),
		})
	}

	n := in.Size()
	enter := make([]mip.Constraint, n)
	leave := make([]mip.Constraint, n)
	dFlow := make([]mip.Constraint, n)
	pFlow := make([]mip.Constraint, n)
	for j := 1; j < n; j++ {
		nd := in.Nodes[j]
		enter[j] = m.NewConstraint(mip.Equal, 1)
		leave[j] = m.NewConstraint(mip.Equal, 1)
		// delivery in - delivery out = d_j
		dFlow[j] = m.NewConstraint(mip.Equal, float64(nd.Delivery))
		// pickup out - pickup in = p_j
		pFlow[j] = m.NewConstraint(mip.Equal, float64(nd.Pickup))
	}
	depotDeliveryOut := m.NewConstraint(mip.Equal, float64(in.TotalDelivery))
	depotDeliveryIn := m.NewConstraint(mip.Equal, 0)
	depotPickupOut := m.NewConstraint(mip.Equal, 0)
	depotPickupIn := m.NewConstraint(mip.Equal, float64(in.TotalPickup))

	for _, v := range vars {
		i, j := v.link.From, v.link.To
		di, pi := in.Nodes[i].Delivery, in.Nodes[i].Pickup
		dj, pj := in.Nodes[j].Delivery, in.Nodes[j].Pickup
		if i == model.Depot {
			di, pi = 0, 0
		}
		if j == model.Depot {
			dj, pj = 0, 0
		}

		m.Objective().NewTerm(v.link.Distance*model.UnitFuelCost*model.EmptyRate, v.x)
		m.Objective().NewTerm(v.link.Distance*model.UnitFuelCost*in.Alpha, v.delivery)
		m.Objective().NewTerm(v.link.Distance*model.UnitFuelCost*in.Alpha, v.pickup)

		if j != model.Depot {
			enter[j].NewTerm(1, v.x)
			dFlow[j].NewTerm(1, v.delivery)
			pFlow[j].NewTerm(-1, v.pickup)
		} else {
			depotDeliveryIn.NewTerm(1, v.delivery)
			depotPickupIn.NewTerm(1, v.pickup)
		}
		if i != model.Depot {
			leave[i].NewTerm(1, v.x)
			dFlow[i].NewTerm(-1, v.delivery)
			pFlow[i].NewTerm(1, v.pickup)
		} else {
			depotDeliveryOut.NewTerm(1, v.delivery)
			depotPickupOut.NewTerm(1, v.pickup)
		}

		// D + P <= M x
		bigM := capacity - float64(max(0, di-pi, pj-dj))
		load := m.NewConstraint(mip.LessThanOrEqual, 0)
		load.NewTerm(1, v.delivery)
		load.NewTerm(1, v.pickup)
		load.NewTerm(-bigM, v.x)

		if i != model.Depot {
			c := m.NewConstraint(mip.LessThanOrEqual, 0)
			c.NewTerm(1, v.delivery)
			c.NewTerm(-(capacity - float64(di)), v.x)
		}
		if j != model.Depot {
			c := m.NewConstraint(mip.LessThanOrEqual, 0)
			c.NewTerm(1, v.pickup)
			c.NewTerm(-(capacity - float64(pj)), v.x)
		}
		// D >= d_j x and P >= p_i x, written as <= 0
		if dj > 0 {
			c := m.NewConstraint(mip.LessThanOrEqual, 0)
			c.NewTerm(float64(dj), v.x)
			c.NewTerm(-1, v.delivery)
		}
		if pi > 0 {
			c := m.NewConstraint(mip.LessThanOrEqual, 0)
			c.NewTerm(float64(pi), v.x)
			c.NewTerm(-1, v.pickup)
		}
	}
	return m, vars
}

// Solve implements opt.Oracle. Only the incumbent returned by HiGHS is
// reported; its gap is measured against LowerBound unless HiGHS proved it
// optimal.
func (h *Highs) Solve(ctx context.Context, links []model.Link, limit time.Duration) ([]opt.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		return nil, nil
	}
	began := time.Now()
	m, vars := h.formulation(links)
	solver, err := mip.NewSolver("highs", m)
	if err != nil {
		return nil, fmt.Errorf("create highs solver: %w", err)
	}
	opts := mip.NewSolveOptions()
	if err := opts.SetMaximumDuration(limit); err != nil {
		return nil, fmt.Errorf("set duration: %w", err)
	}
	if err := opts.SetMIPGapRelative(0); err != nil {
		return nil, fmt.Errorf("set gap: %w", err)
	}
	opts.SetVerbosity(mip.Off)
	created := time.Since(began)

	sol, err := solver.Solve(opts)
	if err != nil {
		return nil, fmt.Errorf("highs solve: %w", err)
	}
	if sol == nil || !sol.HasValues() {
		return nil, nil
	}

	succ := make(map[int][]int)
	for _, v := range vars {
		if sol.Value(v.x) > 0.5 {
			succ[v.link.From] = append(succ[v.link.From], v.link.To)
		}
	}
	out := opt.NewSolution(h.in, decodeRoutes(succ))
	out.Status = StatusTimeLimit
	out.LowerBound = LowerBound(h.in, links)
	obj := sol.ObjectiveValue()
	out.Gap = opt.RelativeGap(obj, out.LowerBound)
	if sol.IsOptimal() {
		out.Status = StatusOptimal
		out.LowerBound = obj
		out.Gap = 0
	}
	if math.IsInf(out.LowerBound, 0) {
		out.Gap = 1
	}
	out.CreationTime = created
	out.SolvingTime = sol.RunTime()
	h.log.WithFields(log.Fields{
		"links":  len(links),
		"cost":   obj,
		"status": out.Status,
	}).Debug("highs finished")
	return []opt.Solution{out}, nil
}
