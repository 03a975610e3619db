package notion

import (
	"errors"
	"net"
	"net/http"

	"github.com/jomei/notionapi"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// classify turns a Notion API error into a sync error kind. withParent marks
// calls that write the parent relation; Notion rejects a bad relation target
// with a validation error.
func classify(err error, op, id string, withParent bool) error {
	if err == nil {
		return nil
	}
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		code := string(nerr.Code)
		switch {
		case nerr.Status == http.StatusNotFound || code == "object_not_found":
			return syncerr.NotFound(model.SideNotion, op, id, err)
		case nerr.Status == http.StatusTooManyRequests || nerr.Status >= 500 || code == "rate_limited" || code == "conflict_error":
			return syncerr.Transient(model.SideNotion, op, id, err)
		case withParent && (nerr.Status == http.StatusBadRequest || code == "validation_error"):
			return syncerr.InvalidParent(model.SideNotion, op, id, err)
		}
		return syncerr.New(syncerr.KindUnknown, model.SideNotion, op, id, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return syncerr.Transient(model.SideNotion, op, id, err)
	}
	return syncerr.New(syncerr.KindUnknown, model.SideNotion, op, id, err)
}
