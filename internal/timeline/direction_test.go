package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectionReverse(t *testing.T) {
	require.True(t, Forward.IsForward())
	require.False(t, Forward.IsBackward())
	require.Equal(t, Backward, Forward.Reverse())
	require.Equal(t, Forward, Backward.Reverse())
}

func TestDirectionAPIStringRoundTrip(t *testing.T) {
	require.Equal(t, "f", Forward.AsAPIString())
	require.Equal(t, "b", Backward.AsAPIString())

	var d, ok = FromAPIString("f")
	require.True(t, ok)
	require.Equal(t, Forward, d)

	d, ok = FromAPIString("b")
	require.True(t, ok)
	require.Equal(t, Backward, d)

	_, ok = FromAPIString("sideways")
	require.False(t, ok)
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "forward", Forward.String())
	require.Equal(t, "backward", Backward.String())
}
