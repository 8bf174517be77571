// Package instance reads problem instances: the .vrpspd text format of the
// Salhi and Dethloff benchmark sets, YAML files and inline API payloads.
package instance

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vrpspd/internal/model"
)

// LoadError reports an instance that could not be read or validated. It
// matches model.ErrInvalidInstance with errors.Is.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	where := e.Path
	if where == "" {
		where = "instance"
	}
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
	}
	return fmt.Sprintf("load %s: %v", where, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes every LoadError an invalid instance.
func (e *LoadError) Is(target error) bool { return target == model.ErrInvalidInstance }

// Extensions tried by Resolve, in order.
var Extensions = []string{".vrpspd", ".yaml", ".yml", ".json"}

// Load reads an instance file, choosing the format by extension.
func Load(path string) (*model.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	var spec *model.InstanceSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		spec, err = DecodeYAML(f)
	case ".json":
		spec, err = DecodeJSON(f)
	default:
		spec, err = ParseVRPSPD(f)
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	in, err := FromSpec(spec)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return in, nil
}

// Resolve finds the file of a named instance under dir. Besides dir itself
// the SALHI (CMT*) and DETHLOFF (CON*, SCA*) subdirectories are searched.
func Resolve(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", &LoadError{Path: name, Err: errors.New("invalid instance name")}
	}
	dirs := []string{dir}
	switch {
	case strings.Contains(name, "CMT"):
		dirs = append(dirs, filepath.Join(dir, "SALHI"))
	case strings.Contains(name, "CON"), strings.Contains(name, "SCA"):
		dirs = append(dirs, filepath.Join(dir, "DETHLOFF"))
	}
	for _, d := range dirs {
		for _, ext := range Extensions {
			p := filepath.Join(d, name+ext)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}
	return "", &LoadError{Path: name, Err: os.ErrNotExist}
}

// DecodeYAML reads an InstanceSpec document.
func DecodeYAML(r io.Reader) (*model.InstanceSpec, error) {
	var spec model.InstanceSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &spec, nil
}

// DecodeJSON reads an InstanceSpec document.
func DecodeJSON(r io.Reader) (*model.InstanceSpec, error) {
	var spec model.InstanceSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &spec, nil
}

// FromSpec validates spec and builds the instance. Nodes may be listed in
// any order but ids must be 0..n-1 with the depot at 0. Without a distance
// matrix distances are Euclidean between node coordinates.
func FromSpec(spec *model.InstanceSpec) (*model.Instance, error) {
	if spec == nil {
		return nil, &LoadError{Err: errors.New("missing instance")}
	}
	n := len(spec.Nodes)
	byID := make([]*model.NodeSpec, n)
	for i := range spec.Nodes {
		nd := &spec.Nodes[i]
		if nd.ID < 0 || nd.ID >= n {
			return nil, &LoadError{Err: fmt.Errorf("node id %d out of range [0,%d)", nd.ID, n)}
		}
		if byID[nd.ID] != nil {
			return nil, &LoadError{Err: fmt.Errorf("duplicate node id %d", nd.ID)}
		}
		byID[nd.ID] = nd
	}
	nodes := make([]model.Node, n)
	for i, nd := range byID {
		nodes[i] = model.Node{ID: i, Pickup: nd.Pickup, Delivery: nd.Delivery}
	}
	dist := spec.Distances
	if len(dist) == 0 {
		dist = make([][]float64, n)
		for i := range dist {
			dist[i] = make([]float64, n)
			for j := range dist[i] {
				dist[i][j] = math.Hypot(byID[i].X-byID[j].X, byID[i].Y-byID[j].Y)
			}
		}
	}
	in, err := model.NewInstance(spec.Name, nodes, dist, spec.Capacity)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	return in, nil
}

// ParseVRPSPD reads the benchmark text format: NAME, DIMENSION and CAPACITY
// headers, then NODE_COORD_SECTION, an optional EDGE_WEIGHT_SECTION with
// one matrix row per line, and PICKUP_AND_DELIVERY_SECTION whose sixth and
// seventh columns are the pickup and delivery. Ids in the file are 1-based.
// Reading stops at DEPOT_SECTION.
func ParseVRPSPD(r io.Reader) (*model.InstanceSpec, error) {
	const (
		header = iota
		coords
		weights
		demands
	)
	spec := &model.InstanceSpec{}
	section, line, row, dim := header, 0, 0, 0
	fail := func(format string, args ...any) error {
		return &LoadError{Line: line, Err: fmt.Errorf(format, args...)}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		switch {
		case strings.HasPrefix(text, "NAME"):
			spec.Name = headerValue(text)
			continue
		case strings.HasPrefix(text, "DIMENSION"):
			v, err := strconv.Atoi(headerValue(text))
			if err != nil || v < 2 {
				return nil, fail("bad DIMENSION %q", headerValue(text))
			}
			dim = v
			spec.Nodes = make([]model.NodeSpec, dim)
			for i := range spec.Nodes {
				spec.Nodes[i].ID = i
			}
			continue
		case strings.HasPrefix(text, "CAPACITY"):
			v, err := strconv.Atoi(headerValue(text))
			if err != nil {
				return nil, fail("bad CAPACITY %q", headerValue(text))
			}
			spec.Capacity = v
			continue
		case strings.HasPrefix(text, "NODE_COORD_SECTION"):
			section = coords
			continue
		case strings.HasPrefix(text, "EDGE_WEIGHT_SECTION"):
			section, row = weights, 0
			spec.Distances = make([][]float64, 0, dim)
			continue
		case strings.HasPrefix(text, "PICKUP_AND_DELIVERY_SECTION"):
			section = demands
			continue
		case strings.HasPrefix(text, "DEPOT_SECTION"), text == "EOF":
			return finish(spec, dim, line)
		}
		if section == header {
			// TYPE, COMMENT, EDGE_WEIGHT_TYPE and the like
			continue
		}
		if dim == 0 {
			return nil, fail("section data before DIMENSION")
		}
		fields := strings.Fields(text)
		switch section {
		case coords:
			if len(fields) < 3 {
				return nil, fail("coordinate line needs id x y")
			}
			id, err := nodeIndex(fields[0], dim)
			if err != nil {
				return nil, fail("%v", err)
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			if errX != nil || errY != nil {
				return nil, fail("bad coordinates %q", text)
			}
			spec.Nodes[id].X, spec.Nodes[id].Y = x, y
		case weights:
			if row >= dim {
				return nil, fail("more than %d distance rows", dim)
			}
			vals := make([]float64, len(fields))
			for i, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fail("bad distance %q", f)
				}
				vals[i] = v
			}
			spec.Distances = append(spec.Distances, vals)
			row++
		case demands:
			if len(fields) < 7 {
				return nil, fail("pickup and delivery line needs 7 columns, got %d", len(fields))
			}
			id, err := nodeIndex(fields[0], dim)
			if err != nil {
				return nil, fail("%v", err)
			}
			p, errP := strconv.Atoi(fields[5])
			d, errD := strconv.Atoi(fields[6])
			if errP != nil || errD != nil {
				return nil, fail("bad demand %q", text)
			}
			spec.Nodes[id].Pickup, spec.Nodes[id].Delivery = p, d
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Line: line, Err: err}
	}
	return finish(spec, dim, line)
}

func finish(spec *model.InstanceSpec, dim, line int) (*model.InstanceSpec, error) {
	if dim == 0 {
		return nil, &LoadError{Line: line, Err: errors.New("missing DIMENSION")}
	}
	if len(spec.Distances) > 0 && len(spec.Distances) != dim {
		return nil, &LoadError{Line: line, Err: fmt.Errorf("%d distance rows for %d nodes", len(spec.Distances), dim)}
	}
	return spec, nil
}

func headerValue(text string) string {
	if i := strings.Index(text, ":"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

func nodeIndex(field string, dim int) (int, error) {
	id, err := strconv.Atoi(field)
	if err != nil || id < 1 || id > dim {
		return 0, fmt.Errorf("bad node id %q", field)
	}
	return id - 1, nil
}
