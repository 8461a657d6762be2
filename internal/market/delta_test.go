package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaTracker(t *testing.T) {
	d := NewDeltaTracker()
	assert.Equal(t, 0.0, d.Ratio(), "ratio is 0 before any volume")

	d.Update(Buy, 30)
	d.Update(Sell, 10)
	d.Update(Buy, 10)

	assert.Equal(t, 30.0, d.Delta())
	assert.Equal(t, 0.6, d.Ratio())

	s := d.Summary()
	assert.Equal(t, 40.0, s.BidVolume)
	assert.Equal(t, 10.0, s.AskVolume)

	d.Reset()
	assert.Equal(t, 0.0, d.Delta())
	assert.Equal(t, 0.0, d.Ratio())
}
