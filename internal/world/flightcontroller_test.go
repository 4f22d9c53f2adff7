package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlightControllerAddrFormula(t *testing.T) {
	cases := []struct {
		id               int
		wantPort, wantID int
	}{
		{1, 14560, 2},
		{2, 14570, 3},
		{5, 14600, 6},
	}
	for _, c := range cases {
		port, systemID := FlightControllerAddr(c.id)
		assert.Equal(t, c.wantPort, port)
		assert.Equal(t, c.wantID, systemID)
	}
}
