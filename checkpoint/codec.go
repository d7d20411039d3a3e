package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Save writes m to path in the format implied by its extension.
func (m *MetaState) Save(path string) error {
	return m.SaveAs(path, FormatFromPath(path))
}

// SaveAs writes m to path in format f.
func (m *MetaState) SaveAs(path string, f Format) error {
	if m.Metadata.CreatedAt.IsZero() {
		m.Metadata.CreatedAt = time.Now().UTC()
	}
	switch f {
	case FormatGob:
		return model.SaveModel(m, path)
	case FormatJSON:
		return saveJSON(m, path)
	case FormatProto:
		return saveProto(m, path)
	default:
		return errors.NewValueError("MetaState.SaveAs", fmt.Sprintf("unsupported checkpoint format: %s", f))
	}
}

// Load reads a checkpoint, picking the decoder from the path extension.
func Load(path string) (*MetaState, error) {
	var m MetaState
	var err error
	switch FormatFromPath(path) {
	case FormatJSON:
		err = loadJSON(&m, path)
	case FormatProto:
		err = loadProto(&m, path)
	default:
		err = model.LoadModel(&m, path)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func saveJSON(m *MetaState, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer func() { _ = file.Close() }()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return file.Sync()
}

func loadJSON(m *MetaState, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := json.NewDecoder(file).Decode(m); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return nil
}

// The proto form is a google.protobuf.Struct mirroring the JSON layout, so
// any protobuf runtime can read it without generated code.
func saveProto(m *MetaState, path string) error {
	st, err := toStruct(m)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func loadProto(m *MetaState, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return fromStruct(&st, m)
}

func toStruct(m *MetaState) (*structpb.Struct, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to build checkpoint struct: %w", err)
	}
	return st, nil
}

func fromStruct(st *structpb.Struct, m *MetaState) error {
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return nil
}
