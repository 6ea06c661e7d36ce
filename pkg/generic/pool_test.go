package generic

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := NewHotPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset, 2)

	buf := p.Get()
	buf.WriteString("dirty")
	p.Put(buf)
	assert.Equal(t, 0, buf.Len())

	assert.NotNil(t, p.Get())
}

func TestPoolWithoutReset(t *testing.T) {
	n := 0
	p := NewPool(func() int { n++; return n }, nil)
	assert.Positive(t, p.Get())
	p.Put(7)
}
