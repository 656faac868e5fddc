package status

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderFirstLines(t *testing.T) {
	s := Default()
	s.AzPos = 101.0
	s.LastAzimuthGoto = 101.0
	s.MoveCode = 0

	rendered := s.Render()
	lines := strings.Split(rendered, "\n")

	assert.Equal(t, "MAIN CLOSED 000", lines[0])
	assert.Equal(t, "DROP CLOSED 000", lines[1])
	assert.Equal(t, "[OFF] 00", lines[2])
	assert.Equal(t, "POSN 101", lines[3])
	assert.Equal(t, "-- 000", lines[4])
	assert.Equal(t, "Dome not homed", lines[5])
}

func TestRenderLineCount(t *testing.T) {
	s := Default()
	rendered := s.Render()
	// 27 lines plus the trailing newline produces 28 split segments with
	// the last being empty.
	lines := strings.Split(rendered, "\n")
	assert.Len(t, lines, 28)
	assert.Equal(t, "", lines[27])
}

func TestEqual(t *testing.T) {
	a := Default()
	b := Default()
	assert.True(t, a.Equal(b))

	b.AzPos = 1
	assert.False(t, a.Equal(b))
}
