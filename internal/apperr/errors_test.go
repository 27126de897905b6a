package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	cases := map[*Error]int{
		Validation("bad"):           http.StatusBadRequest,
		Unauthorized("nope"):        http.StatusUnauthorized,
		NotFound("missing"):         http.StatusNotFound,
		Conflict("taken"):           http.StatusConflict,
		{Kind: Kind(99)}:            http.StatusInternalServerError,
		Wrap(KindNotFound, "", nil): http.StatusNotFound,
	}
	for err, want := range cases {
		require.Equal(t, want, err.Status(), err.Error())
	}
}

func TestErrorsIsMatchesKindThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("login: %w", Wrap(KindUnauthorized, "Not authorized", cause))

	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, cause)
	require.Equal(t, http.StatusUnauthorized, Status(err))
	require.Equal(t, "Not authorized", Unauthorized("Not authorized").Error())
}

func TestStatusDefaultsToInternal(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
	require.Equal(t, "validation", (&Error{Kind: KindValidation}).Error())
}
