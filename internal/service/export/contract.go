package export

import (
	"context"

	"github.com/kotche/notes/internal/model"
)

type (
	// Dispatcher accepts export requests and hands them to the export channel.
	// It does not wait for the worker and does not deduplicate.
	Dispatcher interface {
		RequestExport(ctx context.Context, requester, target model.UserID) (model.CorrelationID, error)
	}
)
