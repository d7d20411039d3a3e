package tensor

import (
	"bytes"
	"encoding/gob"
)

// Record is the serializable form of a Tensor.
type Record struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ToRecord copies t into a Record.
func (t *Tensor) ToRecord() Record {
	return Record{Shape: t.Shape(), Data: t.RawData()}
}

// FromRecord rebuilds a tensor from r.
func FromRecord(r Record) (*Tensor, error) {
	return New(append([]float64(nil), r.Data...), r.Shape...)
}

// GobEncode implements gob.GobEncoder.
func (t *Tensor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.ToRecord()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *Tensor) GobDecode(b []byte) error {
	var r Record
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return err
	}
	nt, err := FromRecord(r)
	if err != nil {
		return err
	}
	*t = *nt
	return nil
}
