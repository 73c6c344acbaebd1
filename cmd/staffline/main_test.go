package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staffline/staffline/internal/app"
	_ "github.com/staffline/staffline/testing"
)

func TestEntryPointsSkipRuntimeInTestMode(t *testing.T) {
	require.True(t, app.RefreshTestMode())
	require.Equal(t, 0, serve(context.Background()))
	require.Equal(t, 0, runJobs(context.Background(), []string{"stats"}))
}
