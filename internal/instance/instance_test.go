package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

const square = `NAME : SQ4
DIMENSION : 4
CAPACITY : 10
NODE_COORD_SECTION
1 0 0
2 0 10
3 10 10
4 10 0
PICKUP_AND_DELIVERY_SECTION
1 0 0 0 0 0 0
2 0 0 0 0 0 5
3 0 0 0 0 0 5
4 0 0 0 0 3 0
DEPOT_SECTION
1
-1
EOF
`

func TestParseVRPSPDEuclidean(t *testing.T) {
	spec, err := ParseVRPSPD(strings.NewReader(square))
	require.NoError(t, err)
	assert.Equal(t, "SQ4", spec.Name)
	assert.Equal(t, 10, spec.Capacity)
	require.Len(t, spec.Nodes, 4)
	assert.Equal(t, model.NodeSpec{ID: 3, X: 10, Y: 0, Pickup: 3}, spec.Nodes[3])

	in, err := FromSpec(spec)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, in.Distance(0, 1), 1e-12)
	assert.InDelta(t, 14.142135, in.Distance(1, 3), 1e-6)
	assert.Equal(t, 10, in.TotalDelivery)
	assert.Equal(t, 3, in.TotalPickup)
}

func TestParseVRPSPDMatrix(t *testing.T) {
	src := `NAME : CON3-0
DIMENSION : 3
CAPACITY : 100
EDGE_WEIGHT_SECTION
0 70000 30000
70000 0 50000
30000 50000 0
PICKUP_AND_DELIVERY_SECTION
1 0 0 0 0 0 0
2 0 0 0 0 4 9
3 0 0 0 0 8 2
DEPOT_SECTION
`
	spec, err := ParseVRPSPD(strings.NewReader(src))
	require.NoError(t, err)
	in, err := FromSpec(spec)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, in.Distance(1, 2))
	assert.Equal(t, model.Node{ID: 1, Pickup: 4, Delivery: 9}, in.Nodes[1])
	assert.Equal(t, 10000.0, in.CostDivisor())
}

func TestParseVRPSPDErrors(t *testing.T) {
	cases := map[string]string{
		"no dimension":  "NAME : X\nCAPACITY : 5\n",
		"bad node id":   "DIMENSION : 2\nNODE_COORD_SECTION\n7 0 0\n",
		"short demand":  "DIMENSION : 2\nPICKUP_AND_DELIVERY_SECTION\n1 0 0\n",
		"ragged matrix": "DIMENSION : 3\nEDGE_WEIGHT_SECTION\n0 1 1\n1 0 1\nDEPOT_SECTION\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVRPSPD(strings.NewReader(src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidInstance))
		})
	}
}

func TestLoadYAMLAndResolve(t *testing.T) {
	dir := t.TempDir()
	doc := `name: tiny
capacity: 8
nodes:
  - {id: 0, x: 0, y: 0, pickup: 0, delivery: 0}
  - {id: 2, x: 3, y: 4, pickup: 1, delivery: 2}
  - {id: 1, x: 0, y: 4, pickup: 2, delivery: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "SALHI"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SALHI", "CMT1X.vrpspd"), []byte(square), 0o644))

	p, err := Resolve(dir, "tiny")
	require.NoError(t, err)
	in, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "tiny", in.Name)
	assert.Equal(t, 3, in.Size())
	assert.InDelta(t, 5.0, in.Distance(0, 2), 1e-12)

	p, err = Resolve(dir, "CMT1X")
	require.NoError(t, err)
	in, err = Load(p)
	require.NoError(t, err)
	assert.Equal(t, "SQ4", in.Name)

	_, err = Resolve(dir, "missing")
	assert.True(t, errors.Is(err, model.ErrInvalidInstance))
	_, err = Resolve(dir, "../etc/passwd")
	assert.Error(t, err)
}

func TestFromSpecRejectsDuplicateIDs(t *testing.T) {
	spec := &model.InstanceSpec{Name: "dup", Capacity: 5, Nodes: []model.NodeSpec{{ID: 0}, {ID: 0}}}
	_, err := FromSpec(spec)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Error(), "duplicate")
}
