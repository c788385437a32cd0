package warrant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rotor-api/pkg/broker"
)

func TestStrikeDistance_LongAndShort(t *testing.T) {
	sd := NewStrikeDistance()
	sd.Register("61999", broker.DirectionLong, 18000)
	sd.Register("52888", broker.DirectionShort, 21000)

	d := sd.DistanceToStrike("61999", 20000)
	assert.NotNil(t, d, "registered long symbol should report a distance")
	assert.InDelta(t, 10.0, *d, 1e-9, "long distance is (spot-call)/spot")

	d = sd.DistanceToStrike("52888", 20000)
	assert.NotNil(t, d, "registered short symbol should report a distance")
	assert.InDelta(t, 5.0, *d, 1e-9, "short distance is (call-spot)/spot")
}

func TestStrikeDistance_CrossedLevelGoesNegative(t *testing.T) {
	sd := NewStrikeDistance()
	sd.Register("61999", broker.DirectionLong, 18000)

	d := sd.DistanceToStrike("61999", 17000)
	assert.NotNil(t, d, "crossed symbol still reports")
	assert.Negative(t, *d, "distance past the knock-out level is negative")
}

func TestStrikeDistance_UnknownsReturnNil(t *testing.T) {
	sd := NewStrikeDistance()
	assert.Nil(t, sd.DistanceToStrike("00000", 100), "unregistered symbol reports nil")

	sd.Register("61999", broker.DirectionLong, 18000)
	assert.Nil(t, sd.DistanceToStrike("61999", 0), "non-positive spot reports nil")

	sd.Register("61999", broker.DirectionLong, 0)
	assert.Nil(t, sd.DistanceToStrike("61999", 20000), "zero call price unregisters the symbol")
}
