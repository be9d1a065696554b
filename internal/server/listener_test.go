package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenBindsEphemeralPortAndCloses(t *testing.T) {
	l, err := Listen(0, nil)
	require.NoError(t, err)
	require.Greater(t, l.FD(), int32(0))
	require.NoError(t, l.Close())
}
