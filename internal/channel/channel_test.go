package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testParams(seed int64) Params {
	return Params{
		PathLossExponent:   3.0,
		RiceKFactor:        8.0,
		MaxBroadcastRangeM: 100,
		Seed:               seed,
	}
}

func TestSelfRSSI(t *testing.T) {
	m := New(testParams(1))
	link := m.Update(5, 5, 0, 0)
	assert.Equal(t, math.MaxFloat64, link.RSSIDbm)
	assert.Equal(t, 0.0, link.LatencySec)
}

func TestRangeGateForcesDrop(t *testing.T) {
	m := New(testParams(1))
	link := m.Update(1, 2, 150, 0)
	assert.Equal(t, 1.0, link.PacketLossProb)
}

func TestRSSIDistanceMonotonicityMeans(t *testing.T) {
	m := New(testParams(7))

	means := map[float64]float64{}
	for _, d := range []float64{1, 10, 100} {
		var sum float64
		const n = 10000
		for i := 0; i < n; i++ {
			link := m.Update(1, 2, d, float64(i))
			sum += link.RSSIDbm
		}
		means[d] = sum / n
	}

	assert.InDelta(t, -40.0, means[1], 0.3)
	assert.InDelta(t, -70.0, means[10], 0.3)
	assert.InDelta(t, -100.0, means[100], 0.3)
}

func TestFadingStdDevApproximatelyTwoDb(t *testing.T) {
	m := New(testParams(11))
	const n = 10000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		link := m.Update(1, 2, 10, float64(i))
		pathLoss := -40.0 - 10*3.0*math.Log10(10)
		fade := link.RSSIDbm - pathLoss
		sum += fade
		sumSq += fade * fade
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	std := math.Sqrt(variance)
	assert.InDelta(t, 2.0, std, 0.5)
}

func TestReadingRSSIDoesNotMutateChannelState(t *testing.T) {
	m := New(testParams(3))
	first := m.RSSI(1, 2, 10, 0)
	second := m.RSSI(1, 2, 10, 0)
	assert.Equal(t, first, second)
}

func TestLinksAreOrderedDeterministically(t *testing.T) {
	m := New(testParams(9))
	m.Update(3, 1, 10, 0)
	m.Update(1, 2, 10, 0)
	m.Update(2, 1, 10, 0)
	m.Update(1, 3, 10, 0)

	links := m.Links()
	for i := 1; i < len(links); i++ {
		prev, cur := links[i-1], links[i]
		if prev.SenderID == cur.SenderID {
			assert.Less(t, prev.ReceiverID, cur.ReceiverID)
		} else {
			assert.Less(t, prev.SenderID, cur.SenderID)
		}
	}
}

func TestPacketLossBoundaryValues(t *testing.T) {
	cases := []struct {
		rssi     float64
		expected float64
	}{
		{-100, 1.0},
		{-80, 0.135},
		{-60, 0.018},
	}
	for _, c := range cases {
		p := math.Exp(-math.Max(0, c.rssi+100) / 10)
		assert.InDelta(t, c.expected, p, 0.01)
	}
}
