package padp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/slp"
)

func newPair(t *testing.T) (*Layer, *Layer) {
	t.Helper()
	portA, portB := octet.NewMemPortPair()
	t.Cleanup(func() { portA.Close(); portB.Close() })

	addr := slp.Address{Protocol: slp.ProtoPADP, Port: 3}
	slpA := slp.New(portA, addr, nil)
	slpB := slp.New(portB, addr, nil)
	return New(slpA, addr, nil), New(slpB, addr, nil)
}

func TestWriteReadSingleFragment(t *testing.T) {
	a, b := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Write(ctx, []byte("short message")) }()

	got, err := b.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, []byte("short message"), got)
}

func TestWriteReadMultiFragment(t *testing.T) {
	a, b := newPair(t)

	payload := make([]byte, maxFragmentBody*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Write(ctx, payload) }()

	got, err := b.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}

func TestWriteReadEmptyMessage(t *testing.T) {
	a, b := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Write(ctx, nil) }()

	got, err := b.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Empty(t, got)
}

func TestSplitFragmentsBoundaries(t *testing.T) {
	one := splitFragments(make([]byte, maxFragmentBody))
	require.Len(t, one, 1)
	assert.Equal(t, maxFragmentBody, len(one[0].body))

	two := splitFragments(make([]byte, maxFragmentBody+1))
	require.Len(t, two, 2)
	assert.Equal(t, maxFragmentBody, len(two[0].body))
	assert.Equal(t, 1, len(two[1].body))
	assert.Equal(t, maxFragmentBody, two[1].offset)

	empty := splitFragments(nil)
	require.Len(t, empty, 1)
	assert.Nil(t, empty[0].body)
}

func TestBuildHeaderLayout(t *testing.T) {
	wire := buildHeader(FragData, FlagFirst|FlagLast, 5, []byte("ab"))
	require.Len(t, wire, fragmentHeaderLen+2)
	assert.Equal(t, FragData, wire[0])
	assert.Equal(t, FlagFirst|FlagLast, wire[1])
	assert.Equal(t, uint16(5), octet.GetU16At(wire, 2))
	assert.Equal(t, []byte("ab"), wire[4:])
}
