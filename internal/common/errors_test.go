package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodedErrors(t *testing.T) {
	tests := []struct {
		err    CodedError
		code   string
		status int
	}{
		{NewConfigurationError("bad", nil), CodeConfiguration, http.StatusInternalServerError},
		{&StateError{Op: "Transform", Msg: ErrMsgNotFitted}, CodeState, http.StatusInternalServerError},
		{NewPredictionInputError(), CodePredictionInput, http.StatusBadRequest},
		{&ModelUnavailableError{Reason: "timeout"}, CodeModelUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("load: %w", NewNotFoundError("/models/x.json"))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "/models/x.json")

	assert.False(t, IsNotFound(NewConfigurationError("malformed", nil)))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestModelUnavailableWrapsCause(t *testing.T) {
	cause := NewNotFoundError("/models/logistic_model.gob")
	err := &ModelUnavailableError{Reason: "failed to load models", Err: cause}

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.True(t, IsNotFound(err))
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "failed to load models")
}

func TestPredictionInputError(t *testing.T) {
	e := NewPredictionInputError()
	assert.False(t, e.HasErrors())

	e.Add("sex", "must be male or female")
	e.Add("age", "must be between 0 and 120")
	e.Add("age", "must be a finite number")
	assert.True(t, e.HasErrors())
	assert.Len(t, e.FieldErrors["age"], 2)
	assert.Equal(t,
		"invalid prediction input: age: must be between 0 and 120; must be a finite number, sex: must be male or female",
		e.Error())
}
