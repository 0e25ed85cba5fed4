package store

import (
	"encoding/json"

	"gnneval/evaluation"
	. "gnneval/grid_world"
)

func EncodeReport(rep *evaluation.Report) ([]byte, error) {
	return json.Marshal(rep)
}

// DecodeReport restores a report. The direction table is not serialized, so
// the default table is reattached.
func DecodeReport(data []byte) (*evaluation.Report, error) {
	rep := &evaluation.Report{}
	if err := json.Unmarshal(data, rep); err != nil {
		return nil, err
	}
	rep.Config.Directions = DefaultDirections
	return rep, nil
}
