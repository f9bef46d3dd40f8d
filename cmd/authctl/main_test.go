package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	require.Equal(t, time.Millisecond, percentile(samples, 0))
	require.Equal(t, 50*time.Millisecond, percentile(samples, 50))
	require.Equal(t, 99*time.Millisecond, percentile(samples, 99))
	require.Equal(t, 100*time.Millisecond, percentile(samples, 100))
	require.Zero(t, percentile(nil, 50))
}

func TestComputeStats(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, 1)
	require.Equal(t, 3, s.ops)
	require.Equal(t, int64(1), s.failures)
	require.Equal(t, 2*time.Millisecond, s.p50)
	require.InDelta(t, 3.0, s.opsPerS, 0.001)

	require.Zero(t, computeStats(time.Second, nil, 0).ops)
}

func TestCheckRoles(t *testing.T) {
	require.NoError(t, checkRoles([]string{"user", "ADMIN"}))
	require.ErrorContains(t, checkRoles([]string{"user", "root"}), "root")
	require.Error(t, checkRoles(nil))
}

func TestLoadtestRuns(t *testing.T) {
	for _, args := range [][]string{
		{"--identities", "20", "--concurrency", "4", "--ops", "200", "--no-mirror"},
		{"--identities", "20", "--concurrency", "4", "--ops", "200", "--miniredis"},
	} {
		cmd := newLoadtestCmd()
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute(), "%v", args)
	}
}

func TestLoadtestRejectsBadFlags(t *testing.T) {
	cmd := newLoadtestCmd()
	cmd.SetArgs([]string{"--ops", "0", "--no-mirror"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	require.Error(t, cmd.Execute())
}

func TestUserLifecycleAgainstSQLite(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	dsn := t.TempDir() + "/users.db"

	add := newUserCmd()
	add.SetArgs([]string{"add", "uma", "--dsn", dsn, "--password", "Velvet-Harbor-42#", "--role", "user"})
	require.NoError(t, add.Execute())

	weak := newUserCmd()
	weak.SilenceErrors = true
	weak.SilenceUsage = true
	weak.SetArgs([]string{"add", "ivo", "--dsn", dsn, "--password", "password1"})
	require.ErrorContains(t, weak.Execute(), "password")

	roles := newUserCmd()
	roles.SetArgs([]string{"roles", "uma", "analyst", "--dsn", dsn})
	require.NoError(t, roles.Execute())

	del := newUserCmd()
	del.SetArgs([]string{"delete", "uma", "--dsn", dsn})
	require.NoError(t, del.Execute())
}
