package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/committer"
)

func TestSubsystemFailureKeepsFirstError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failure := newSubsystemFailure(cancel)

	name, err := failure.Err()
	assert.Empty(t, name)
	assert.NoError(t, err)

	failure.fail("committer", committer.ErrInvariantViolation)
	failure.fail("ethsender", errors.New("later error"))

	require.Error(t, ctx.Err())
	name, err = failure.Err()
	assert.Equal(t, "committer", name)
	assert.ErrorIs(t, err, committer.ErrInvariantViolation)
}
