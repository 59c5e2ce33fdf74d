package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferIsResetOnGet(t *testing.T) {
	p := Global

	buf := p.GetBuffer()
	buf.WriteString("edge statistics")
	p.PutBuffer(buf)

	again := p.GetBuffer()
	assert.Zero(t, again.Len())
	p.PutBuffer(again)
}

func TestOversizedBufferIsDropped(t *testing.T) {
	p := Global
	big := bytes.NewBuffer(make([]byte, 0, maxPooledBuffer+1))

	// не должно паниковать и не должно возвращаться в пул
	p.PutBuffer(big)
	p.PutBuffer(nil)

	buf := p.GetBuffer()
	assert.LessOrEqual(t, buf.Cap(), maxPooledBuffer)
}

func TestFloatsHaveZeroLength(t *testing.T) {
	p := Global

	s := p.GetFloats()
	*s = append(*s, 1, 2, 3)
	p.PutFloats(s)

	again := p.GetFloats()
	assert.Empty(t, *again)
	p.PutFloats(again)
	p.PutFloats(nil)
}
