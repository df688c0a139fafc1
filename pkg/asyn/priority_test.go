package asyn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "Low", Low.String())
	assert.Equal(t, "Medium", Medium.String())
	assert.Equal(t, "High", High.String())
	assert.Equal(t, "Connect", Connect.String())
	assert.Equal(t, "Priority(?)", Priority(99).String())
}

func TestUserPrioritiesOrder(t *testing.T) {
	assert.Equal(t, [numUserPriorities]Priority{High, Medium, Low}, userPriorities)
}

func TestCancelResultString(t *testing.T) {
	assert.Equal(t, "NotQueued", NotQueued.String())
	assert.Equal(t, "Cancelled", Cancelled.String())
}
