// Package checkpoint stores the trainer meta-state: the architecture
// descriptor needed to rebuild a network, its weights, the optimizer state and
// the training configuration.
//
// Three on-disk formats are supported and chosen by file extension:
//
//	.gob   encoding/gob (default)
//	.json  indented JSON
//	.pb    protobuf google.protobuf.Struct
package checkpoint

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/nn"
	"github.com/ezoic/atomtrain/optim"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Version of the meta-state layout.
const Version = "1"

// FinalSuffix is appended to the configured filename for the end-of-training save.
const FinalSuffix = "_metadict_final"

// Format selects the serialization used by Save.
type Format int

const (
	FormatGob Format = iota
	FormatJSON
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatGob:
		return "gob"
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// Ext returns the file extension written for f.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatProto:
		return ".pb"
	default:
		return ".gob"
	}
}

// ParseFormat maps a format name ("gob", "json", "proto"/"pb") to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gob":
		return FormatGob, nil
	case "json":
		return FormatJSON, nil
	case "proto", "pb", "protobuf":
		return FormatProto, nil
	}
	return FormatGob, errors.NewValueError("checkpoint.ParseFormat", "unknown checkpoint format "+name)
}

// FormatFromPath infers the format from the extension of path. Unknown
// extensions fall back to gob.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".pb":
		return FormatProto
	default:
		return FormatGob
	}
}

// Metadata describes who wrote a checkpoint and when.
type Metadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
}

// MetaState is everything needed to restore a trained network.
//
// Config holds scalar training settings only (bool, string, int, float64).
// After a JSON or proto round trip numeric values come back as float64.
type MetaState struct {
	Descriptor model.Descriptor         `json:"descriptor"`
	Weights    map[string]tensor.Record `json:"weights"`
	Optimizer  optim.State              `json:"optimizer"`
	Config     map[string]interface{}   `json:"config"`
	Metadata   Metadata                 `json:"metadata"`
}

// New creates a meta-state for an architecture. Weights and optimizer state
// are filled in by SetWeights and SetOptimizer.
func New(desc model.Descriptor) *MetaState {
	return &MetaState{
		Descriptor: desc,
		Weights:    map[string]tensor.Record{},
		Config:     map[string]interface{}{},
		Metadata:   Metadata{Version: Version, Framework: "atomtrain"},
	}
}

// SetWeights copies the tensors of sd.
func (m *MetaState) SetWeights(sd model.StateDict) {
	m.Weights = make(map[string]tensor.Record, len(sd))
	for name, t := range sd {
		m.Weights[name] = t.ToRecord()
	}
}

// SetOptimizer records the optimizer state.
func (m *MetaState) SetOptimizer(st optim.State) {
	m.Optimizer = st
}

// Set stores a scalar configuration value.
func (m *MetaState) Set(key string, v interface{}) {
	if m.Config == nil {
		m.Config = map[string]interface{}{}
	}
	m.Config[key] = v
}

// StateDict rebuilds the stored weights as tensors.
func (m *MetaState) StateDict() (model.StateDict, error) {
	sd := make(model.StateDict, len(m.Weights))
	for name, r := range m.Weights {
		t, err := tensor.FromRecord(r)
		if err != nil {
			return nil, errors.Wrapf(err, "weight %s", name)
		}
		sd[name] = t
	}
	return sd, nil
}

// Restore rebuilds the network described by the checkpoint and loads its weights.
func (m *MetaState) Restore() (*nn.Sequential, error) {
	net, err := nn.Build(m.Descriptor)
	if err != nil {
		return nil, err
	}
	sd, err := m.StateDict()
	if err != nil {
		return nil, err
	}
	if err := net.LoadStateDict(sd); err != nil {
		return nil, errors.NewModelError("checkpoint.Restore", "weights do not fit architecture "+m.Descriptor.Architecture, err)
	}
	net.Eval()
	return net, nil
}

// Path returns filename with the end-of-training suffix and the extension of f.
func Path(filename string, f Format) string {
	return filename + FinalSuffix + f.Ext()
}
