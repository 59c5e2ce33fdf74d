package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer буферы больше этого размера не возвращаются в пул
const maxPooledBuffer = 1 << 20

// BufferPools содержит пулы буферов для переиспользования при сериализации
type BufferPools struct {
	bufferPool sync.Pool
	floatPool  sync.Pool
}

// Global пулы буферов
var Global = &BufferPools{
	bufferPool: sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
	},
	floatPool: sync.Pool{
		New: func() interface{} {
			s := make([]float64, 0, 256)
			return &s
		},
	},
}

// GetBuffer получает очищенный буфер из пула
func (p *BufferPools) GetBuffer() *bytes.Buffer {
	buf := p.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer возвращает буфер в пул. Содержимое буфера после этого использовать нельзя
func (p *BufferPools) PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	p.bufferPool.Put(buf)
}

// GetFloats получает слайс нулевой длины из пула
func (p *BufferPools) GetFloats() *[]float64 {
	s := p.floatPool.Get().(*[]float64)
	*s = (*s)[:0]
	return s
}

// PutFloats возвращает слайс в пул
func (p *BufferPools) PutFloats(s *[]float64) {
	if s == nil || cap(*s) > maxPooledBuffer/8 {
		return
	}
	p.floatPool.Put(s)
}
