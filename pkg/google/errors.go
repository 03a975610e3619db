package google

import (
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// classify turns a Tasks API error into a sync error kind.
func classify(err error, op, id string) error {
	return classifyParentOp(err, op, id, false)
}

// classifyParentOp is classify for calls that name a parent. Google answers
// a bad parent with 400.
func classifyParentOp(err error, op, id string, withParent bool) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return syncerr.NotFound(model.SideGoogle, op, id, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return syncerr.Transient(model.SideGoogle, op, id, err)
		case gerr.Code == http.StatusForbidden && rateLimited(gerr):
			return syncerr.Transient(model.SideGoogle, op, id, err)
		case gerr.Code == http.StatusBadRequest && withParent:
			return syncerr.InvalidParent(model.SideGoogle, op, id, err)
		}
		return syncerr.New(syncerr.KindUnknown, model.SideGoogle, op, id, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return syncerr.Transient(model.SideGoogle, op, id, err)
	}
	return syncerr.New(syncerr.KindUnknown, model.SideGoogle, op, id, err)
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
