package wsmarshaller

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

// FrameCache marshals each danmaku once, no matter how many connections deliver it.
// Pool ids are never reissued for another entry, so an id is a safe key.
type FrameCache struct {
	frames *lru.Cache[pool.ID, []byte]
}

func NewFrameCache(size int) (*FrameCache, error) {
	frames, err := lru.New[pool.ID, []byte](size)
	if err != nil {
		return nil, err
	}
	return &FrameCache{frames: frames}, nil
}

// Frame returns the encoded frame for id, encoding d on a miss.
// Callers must not modify the returned slice.
func (c *FrameCache) Frame(id pool.ID, d model.Danmaku) ([]byte, error) {
	if data, ok := c.frames.Get(id); ok {
		return data, nil
	}

	data, err := Encode(d)
	if err != nil {
		return nil, err
	}
	c.frames.Add(id, data)
	return data, nil
}

func (c *FrameCache) Len() int { return c.frames.Len() }
