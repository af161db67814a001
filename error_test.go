package twine_test

import (
	"net/http"
	"testing"

	"github.com/advdv/twine"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	err1 := twine.NewError(twine.CodeBadRequest, errors.New("foo"))
	require.Equal(t, twine.Code(400), err1.Code())
	require.Equal(t, twine.CodeBadRequest, twine.CodeOf(err1))
	require.Equal(t, "Bad Request: foo", err1.Error())

	require.Equal(t, twine.CodeUnknown, twine.CodeOf(errors.New("bar")))
	require.Equal(t, "Unknown: rab", twine.NewError(900, errors.New("rab")).Error())
}

func TestStatusOf(t *testing.T) {
	wrapped := errors.Wrap(twine.NewError(twine.CodeNotFound, errors.New("gone")), "serve")
	require.Equal(t, http.StatusNotFound, twine.StatusOf(wrapped))
	require.Equal(t, http.StatusInternalServerError, twine.StatusOf(errors.New("plain")))
	require.Equal(t, http.StatusInternalServerError, twine.StatusOf(twine.NewError(900, errors.New("odd"))))
}
