package gwconfig

import (
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorePutGetRoundTrips(t *testing.T) {
	store := openTestStore(t)
	cfg := validConfig()

	require.NoError(t, store.Put(1, cfg))

	got, found, err := store.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cfg.Overlay.VpcTable, got.Overlay.VpcTable)
}

func TestStorePutRejectsDuplicateGeneration(t *testing.T) {
	store := openTestStore(t)
	cfg := validConfig()

	require.NoError(t, store.Put(1, cfg))
	err := store.Put(1, cfg)
	require.Error(t, err)
	var exists *gwerr.ConfigAlreadyExists
	require.ErrorAs(t, err, &exists)
}

func TestStoreCurrentGenerationRoundTrips(t *testing.T) {
	store := openTestStore(t)
	cfg := validConfig()
	require.NoError(t, store.Put(gwtypes.GenId(7), cfg))
	require.NoError(t, store.SetCurrent(7))

	gen, found, err := store.CurrentGeneration()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, gwtypes.GenId(7), gen)

	got, gotGen, found, err := store.CurrentConfig()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, gwtypes.GenId(7), gotGen)
	require.Equal(t, cfg.Overlay.VpcTable, got.Overlay.VpcTable)
}

func TestStoreCurrentGenerationAbsentBeforeAnySetCurrent(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.CurrentGeneration()
	require.NoError(t, err)
	require.False(t, found)
}
