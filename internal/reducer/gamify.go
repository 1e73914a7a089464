package reducer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/paramspace"
)

// Pair statuses in a decision file.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// PairRef names a (parameter, value) pair by its value kind and rendered
// value. An empty Kind matches any kind.
type PairRef struct {
	Param string
	Kind  string
	Value string
}

// PairState is the published state of one (parameter, value) pair.
type PairState struct {
	Value      string   `json:"value"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	Rounds     int      `json:"rounds"`
	MetricMean *float64 `json:"metric_mean,omitempty"`
}

// ParamState groups the pairs of one parameter.
type ParamState struct {
	Param  string      `json:"param"`
	Values []PairState `json:"values"`
}

// Snapshot is everything published to a decision source after a round.
type Snapshot struct {
	Metric string       `json:"metric"`
	Round  int          `json:"round"`
	Params []ParamState `json:"params"`
}

// DecisionSource is an external party that may mark pairs inactive, for
// example a person editing a JSON file while the scan runs.
type DecisionSource interface {
	Publish(ctx context.Context, snap Snapshot) error
	Inactive(ctx context.Context) ([]PairRef, error)
}

// FileSource keeps the decision state in a JSON file. Statuses edited in the
// file survive later publishes.
type FileSource struct {
	FS   fsutil.FileSystem
	Path string
}

// NewFileSource returns a file-backed decision source. A nil fs uses the OS.
func NewFileSource(fsys fsutil.FileSystem, path string) *FileSource {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &FileSource{FS: fsys, Path: path}
}

func (s *FileSource) read() ([]byte, error) {
	data, err := s.FS.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read decision file: %w", err)
	}
	if len(data) > 0 && !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decision file %s is not valid JSON", s.Path)
	}
	return data, nil
}

func inactiveRefs(data []byte) []PairRef {
	var refs []PairRef
	gjson.GetBytes(data, "params").ForEach(func(_, p gjson.Result) bool {
		name := p.Get("param").String()
		p.Get("values").ForEach(func(_, v gjson.Result) bool {
			if v.Get("status").String() == StatusInactive {
				refs = append(refs, PairRef{Param: name, Kind: v.Get("kind").String(), Value: v.Get("value").String()})
			}
			return true
		})
		return true
	})
	return refs
}

// Publish rewrites the file, keeping any pair already marked inactive.
func (s *FileSource) Publish(_ context.Context, snap Snapshot) error {
	old, err := s.read()
	if err != nil {
		return err
	}
	keep := make(map[PairRef]bool)
	for _, ref := range inactiveRefs(old) {
		keep[ref] = true
	}
	for i, p := range snap.Params {
		for j, v := range p.Values {
			if keep[PairRef{Param: p.Param, Kind: v.Kind, Value: v.Value}] || keep[PairRef{Param: p.Param, Value: v.Value}] {
				snap.Params[i].Values[j].Status = StatusInactive
			}
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decision file: %w", err)
	}
	return s.FS.WriteFileAtomic(s.Path, append(data, '\n'), 0o644)
}

// Inactive returns the pairs currently marked inactive.
func (s *FileSource) Inactive(context.Context) ([]PairRef, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return inactiveRefs(data), nil
}

// Gamify hands the pruning decision to a DecisionSource. After every round
// it publishes per-pair statistics; at each reduction it removes every pair
// the source reports inactive.
type Gamify struct {
	Source  DecisionSource
	applied map[PairRef]bool
}

func newGamify(o Options) (Strategy, error) {
	src := o.Source
	if src == nil {
		if o.Path == "" {
			return nil, fmt.Errorf("%w: gamify needs a decision source or file path", paramspace.ErrConfig)
		}
		src = NewFileSource(o.FS, o.Path)
	}
	return &Gamify{Source: src}, nil
}

// Name implements Strategy.
func (g *Gamify) Name() string { return "gamify" }

// ObserveRound implements RoundObserver.
func (g *Gamify) ObserveRound(ctx context.Context, in Input) error {
	return g.Source.Publish(ctx, snapshot(in))
}

func snapshot(in Input) Snapshot {
	snap := Snapshot{Metric: in.Metric, Round: in.Round}
	metric, _ := in.Table.Column(in.Metric)

	for _, p := range in.Params.Params() {
		column, _ := in.Table.ParamColumn(p.Name)
		ps := ParamState{Param: p.Name}
		for _, v := range p.Values {
			st := PairState{Value: v.String(), Kind: v.Kind().String(), Status: StatusActive}
			var sum float64
			for i, have := range column {
				if have.Equal(v) {
					st.Rounds++
					if metric != nil {
						sum += metric[i]
					}
				}
			}
			if st.Rounds > 0 && metric != nil {
				mean := sum / float64(st.Rounds)
				st.MetricMean = &mean
			}
			ps.Values = append(ps.Values, st)
		}
		snap.Params = append(snap.Params, ps)
	}
	return snap
}

// Decide implements Strategy.
func (g *Gamify) Decide(ctx context.Context, in Input) ([]Decision, error) {
	refs, err := g.Source.Inactive(ctx)
	if err != nil {
		return nil, err
	}
	if g.applied == nil {
		g.applied = make(map[PairRef]bool)
	}

	var out []Decision
	for _, ref := range refs {
		if g.applied[ref] {
			continue
		}
		v, ok := resolve(in.Params, ref)
		if !ok {
			logf("gamify: ignoring unknown pair %s=%s (%s)", ref.Param, ref.Value, ref.Kind)
			continue
		}
		g.applied[ref] = true
		out = append(out, Decision{Param: ref.Param, Value: v, Score: 1, Strategy: g.Name()})
	}
	return out, nil
}

func resolve(decl *paramspace.Declaration, ref PairRef) (paramspace.Value, bool) {
	for _, p := range decl.Params() {
		if p.Name != ref.Param {
			continue
		}
		for _, v := range p.Values {
			if ref.Kind != "" && v.Kind().String() != ref.Kind {
				continue
			}
			if v.String() == ref.Value {
				return v, true
			}
		}
	}
	return paramspace.None(), false
}
