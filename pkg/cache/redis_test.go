package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySkipsBlankParts(t *testing.T) {
	assert.Equal(t, "analytics:program:p-1", Key("analytics", "program", "", " p-1 "))
	assert.Equal(t, "", Key())
}
