package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
)

type brokenReader struct{}

func (brokenReader) Get(string) (string, error) { return "", errors.New("connection reset") }

func TestLoad_Absent(t *testing.T) {
	res := Load[[]int](engine.NewMemStore(nil, nil), "k")
	assert.Equal(t, StatusAbsent, res.Status)
	assert.Empty(t, res.Value)
	assert.NoError(t, res.Err)
	assert.True(t, res.Usable())
}

func TestLoad_Corrupt(t *testing.T) {
	store := engine.NewMemStore(map[string]string{"k": "{not json"}, nil)

	res := Load[[]int](store, "k")
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Empty(t, res.Value)
	assert.Error(t, res.Err)
	assert.True(t, res.Usable())
}

func TestLoad_WrongShapeIsRecovered(t *testing.T) {
	store := engine.NewMemStore(map[string]string{"k": `{"a":1}`}, nil)

	res := Load[[]int](store, "k")
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Nil(t, res.Value)
}

func TestLoad_BackendFailure(t *testing.T) {
	res := Load[[]int](brokenReader{}, "k")
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Usable())
	assert.ErrorContains(t, res.Err, "connection reset")
}

func TestSaveThenLoad(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	require.NoError(t, Save(store, "k", []int{1, 2, 3}))

	res := Load[[]int](store, "k")
	require.Equal(t, StatusLoaded, res.Status)
	assert.Equal(t, []int{1, 2, 3}, res.Value)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "recovered", StatusRecovered.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestLoad_SealedUnderOtherKey(t *testing.T) {
	inner := engine.NewMemStore(nil, nil)
	writerKey := bytes.Repeat([]byte{1}, vault.KeySize)
	readerKey := bytes.Repeat([]byte{2}, vault.KeySize)

	writer, err := vault.Seal(inner, writerKey)
	require.NoError(t, err)
	require.NoError(t, Save(writer, "k", []int{1, 2, 3}))

	reader, err := vault.Seal(inner, readerKey)
	require.NoError(t, err)

	res := Load[[]int](reader, "k")
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, vault.ErrDecrypt)
	assert.False(t, res.Usable(), "data sealed under another key must not be overwritten")

	// The right key still opens it.
	res = Load[[]int](writer, "k")
	assert.Equal(t, StatusLoaded, res.Status)
	assert.Equal(t, []int{1, 2, 3}, res.Value)
}
