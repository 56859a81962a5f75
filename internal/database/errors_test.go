package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: CodeSerializationFailure}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: CodeDeadlockDetected}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: CodeLockNotAvailable}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: CodeUniqueViolation}, ErrorClassPermanent},
		{"wrapped deadlock", fmt.Errorf("decrement stock: %w", &pq.Error{Code: CodeDeadlockDetected}), ErrorClassDeadlock},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: CodeSerializationFailure}))
	assert.True(t, IsRetryable(&pq.Error{Code: CodeLockNotAvailable}))
	assert.False(t, IsRetryable(&pq.Error{Code: CodeCheckViolation}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestConstraintHelpers(t *testing.T) {
	unique := fmt.Errorf("create cart line: %w", &pq.Error{Code: CodeUniqueViolation})

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: CodeForeignKeyViolation}))
	assert.True(t, IsCheckViolation(&pq.Error{Code: CodeCheckViolation}))
	assert.Equal(t, "", Code(errors.New("boom")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", sql.ErrNoRows)))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("up")
	assert.NoError(t, err)
	assert.Equal(t, Up, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
