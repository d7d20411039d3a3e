package main

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Dataset is the on-disk training data. Test tensors are optional; when
// absent a split of the training data is held out.
type Dataset struct {
	XTrain tensor.Record  `json:"x_train"`
	YTrain tensor.Record  `json:"y_train"`
	XTest  *tensor.Record `json:"x_test,omitempty"`
	YTest  *tensor.Record `json:"y_test,omitempty"`
}

// LoadDataset reads a .json or .gob dataset.
func LoadDataset(path string) (xTrain, yTrain, xTest, yTest *tensor.Tensor, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	var ds Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.NewDecoder(f).Decode(&ds)
	default:
		err = gob.NewDecoder(f).Decode(&ds)
	}
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "decode dataset %s", path)
	}

	if xTrain, err = tensor.FromRecord(ds.XTrain); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "x_train")
	}
	if yTrain, err = tensor.FromRecord(ds.YTrain); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "y_train")
	}
	if ds.XTest == nil || ds.YTest == nil {
		return xTrain, yTrain, nil, nil, nil
	}
	if xTest, err = tensor.FromRecord(*ds.XTest); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "x_test")
	}
	if yTest, err = tensor.FromRecord(*ds.YTest); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "y_test")
	}
	return xTrain, yTrain, xTest, yTest, nil
}

// SaveDataset writes ds as JSON or gob depending on the extension of path.
func SaveDataset(path string, ds Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create dataset %s", path)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.NewEncoder(f).Encode(ds)
	} else {
		err = gob.NewEncoder(f).Encode(ds)
	}
	if err != nil {
		return errors.Wrapf(err, "encode dataset %s", path)
	}
	return f.Sync()
}
