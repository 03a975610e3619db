package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	err := NotFound(model.SideGoogle, "delete", "g1", errors.New("404"))
	wrapped := fmt.Errorf("sweep: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrTransient)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := InvalidParent(model.SideNotion, "move_parent", "n1", errors.New("validation_error"))
	assert.Equal(t, "notion invalid_parent during move_parent of n1: validation_error", err.Error())
}

func TestStoreUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable("find", cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}
