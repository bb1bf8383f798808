package metric

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb"
	"github.com/hupe1980/wormdb/codec"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg, "wormdb")
	require.NoError(t, err)

	c.RecordGet(true, time.Millisecond, nil)
	c.RecordGet(false, time.Millisecond, nil)
	c.RecordGet(false, time.Millisecond, errors.New("boom"))
	c.RecordAppend(7, time.Millisecond, nil)
	c.RecordRebuild("users.age", 7, time.Millisecond, nil)
	c.RecordBackup(2, 100, time.Second, nil)
	c.RecordBackup(2, 100, time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.gets.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.gets.WithLabelValues("miss")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.appendRows))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.rebuildRows.WithLabelValues("users.age")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.backupBytes))

	_, err = NewPrometheusCollector(reg, "wormdb")
	assert.Error(t, err, "registering twice fails")
}

func TestPrometheusCollector_WithDB(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg, "")
	require.NoError(t, err)

	db, err := wormdb.OpenTemp(wormdb.WithMetricsCollector(c))
	require.NoError(t, err)
	defer db.Close()

	nums, err := wormdb.OpenTable(db, "nums", codec.Codec[int64](codec.Int64))
	require.NoError(t, err)
	_, err = nums.Append(1, 2, 3)
	require.NoError(t, err)
	_, err = nums.Get(0)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.appendRows))
	assert.Equal(t, 1, testutil.CollectAndCount(c.gets))
}
