package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, InvalidInput("op", nil, "m").Code)
	assert.Equal(t, http.StatusNotFound, NotFound("op", nil, "m").Code)
	assert.Equal(t, http.StatusConflict, NotReady("op", nil, "m").Code)
	assert.Equal(t, http.StatusInternalServerError, Internal("op", nil, "m").Code)
}

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("boom")
	err := Internal("op", cause, "something broke")
	assert.Equal(t, "something broke: boom", err.Error())

	bare := NotFound("op", nil, "job not found")
	assert.Equal(t, "job not found", bare.Error())
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Internal("op", cause, "wrapper")
	assert.True(t, stderrors.Is(err, cause))

	var appErr *AppError
	assert.True(t, stderrors.As(error(err), &appErr))
}
