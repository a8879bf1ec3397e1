package wearable

import (
	"bytes"
	"encoding/json"

	"github.com/juju/errors"

	"github.com/kirsrus/safetywatch/model"
	"github.com/kirsrus/safetywatch/pkg/validator"
)

// Decode parses a hub payload: one reading object or an array of them. Every reading must name its
// worker and carry all sensor fields
func Decode(payload []byte) ([]model.Reading, error) {
	payload = bytes.TrimSpace(payload)
	inputs := make([]model.ReadingInput, 0)
	if len(payload) != 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &inputs); err != nil {
			return nil, errors.NewNotValid(err, "reading batch")
		}
	} else {
		var input model.ReadingInput
		if err := json.Unmarshal(payload, &input); err != nil {
			return nil, errors.NewNotValid(err, "reading")
		}
		inputs = append(inputs, input)
	}

	valid := validator.Get()
	res := make([]model.Reading, 0, len(inputs))
	for i := range inputs {
		if err := valid.Validate(&inputs[i]); err != nil {
			return nil, errors.Trace(err)
		}
		if inputs[i].WorkerID == "" {
			return nil, errors.NotValidf("reading without worker_id")
		}
		res = append(res, inputs[i].Reading())
	}
	return res, nil
}
