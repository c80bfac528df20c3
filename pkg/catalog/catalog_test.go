package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctraysim/pkg/config"
	"ctraysim/pkg/reconstruction"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordAndGet(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	run := Run{
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Phantom:   "shepp-logan",
		Filter:    "ramp",
		Scanner:   config.DefaultConfig().Scanner,
		Metrics:   reconstruction.ValidationMetrics{RMSE: 0.12, SSIM: 0.8, Correlation: 0.9},
		OutputDir: "output/run1",
	}
	id, err := c.Record(ctx, run)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)

	run.ID = id
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("stored run mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissing(t *testing.T) {
	c := openTemp(t)
	_, err := c.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.Record(ctx, Run{
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Phantom:   "breast",
			Filter:    "hamming",
			Scanner:   config.DefaultConfig().Scanner,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	latest, err := c.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, ids[2], latest[0].ID)
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	before := time.Now().UTC().Add(-time.Second)
	id, err := c.Record(context.Background(), Run{Phantom: "uniform", Filter: "none"})
	require.NoError(t, err)

	got, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.After(before))
}
