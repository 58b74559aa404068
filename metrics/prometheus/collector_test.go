package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gridstore"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector(nil, "test")

	c.RecordSwapOut(100, time.Millisecond, nil)
	c.RecordSwapOut(0, time.Millisecond, errors.New("boom"))
	c.RecordSwapIn(60, time.Millisecond, nil)
	c.RecordOutOfMemory()
	c.RecordEviction(2, nil)
	c.RecordEviction(0, nil)
	c.RecordFlush(3, time.Second, nil)

	assert.Equal(t, 100.0, counterValue(t, c.swapBytes.WithLabelValues("out")))
	assert.Equal(t, 60.0, counterValue(t, c.swapBytes.WithLabelValues("in")))
	assert.Equal(t, uint64(1), histogramCount(t, c.swapLatency.WithLabelValues("out", "error")))
	assert.Equal(t, 1.0, counterValue(t, c.outOfMemory))
	assert.Equal(t, 2.0, counterValue(t, c.evictions.WithLabelValues("success")))
	assert.Equal(t, 1.0, counterValue(t, c.evictions.WithLabelValues("nothing_to_evict")))
	assert.Equal(t, 3.0, counterValue(t, c.flushed))
}

func TestCollector_WithGrid(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "dem")

	g, err := gridstore.New[float64](2, 6, -9999,
		gridstore.WithChunkSize(2, 2),
		gridstore.WithMemoryLimit(40, 0),
		gridstore.WithMetricsCollector(c),
	)
	require.NoError(t, err)
	defer g.Close(ctx)

	for col := 0; col < 6; col++ {
		_, err := g.SetCell(ctx, 0, col, float64(col))
		require.NoError(t, err)
	}
	_, err = g.Cell(ctx, 0, 0)
	require.NoError(t, err)

	assert.Positive(t, counterValue(t, c.outOfMemory))
	assert.Positive(t, histogramCount(t, c.swapLatency.WithLabelValues("out", "success")))
	assert.Positive(t, histogramCount(t, c.swapLatency.WithLabelValues("in", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
