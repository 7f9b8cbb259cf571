package export

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kotche/notes/internal/model"
)

var errMalformedJob = errors.New("malformed export job")

// EncodeJob renders the message contract shared with the export worker.
func EncodeJob(job model.ExportJob) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export job '%s': %w", job.CorrelationID, err)
	}
	return payload, nil
}

// DecodeJob parses a message from the export channel and rejects jobs with missing fields.
func DecodeJob(payload []byte) (model.ExportJob, error) {
	var job model.ExportJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return model.ExportJob{}, fmt.Errorf("%w: %v", errMalformedJob, err)
	}

	switch {
	case job.CorrelationID == "":
		return model.ExportJob{}, fmt.Errorf("%w: correlationId is empty", errMalformedJob)
	case job.RequesterID == "" || job.TargetUserID == "":
		return model.ExportJob{}, fmt.Errorf("%w: requester and target are required", errMalformedJob)
	case job.RequestedAt.IsZero():
		return model.ExportJob{}, fmt.Errorf("%w: requestedAt is empty", errMalformedJob)
	}

	return job, nil
}

// IsMalformed reports whether err came from DecodeJob rejecting a payload.
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformedJob)
}
