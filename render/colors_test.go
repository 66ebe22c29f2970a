package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDColor(t *testing.T) {
	assert.Equal(t, idColors[0], IDColor(0))
	assert.Equal(t, idColors[3], IDColor(len(idColors)+3))
	assert.Equal(t, IDColor(5), IDColor(-5))
	assert.NotEqual(t, IDColor(1), IDColor(2))
}
