package lpmarshaller

import (
	"encoding/json"

	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

// LPDanmaku is a danmaku tagged with its id, so polling clients can tell batches apart.
type LPDanmaku struct {
	ID string `json:"id"`
	model.Danmaku
}

// Response defines the top-level JSON object to support batching.
type Response struct {
	Danmaku []LPDanmaku `json:"danmaku"`
}

// MarshallEntries converts pool entries into a single JSON batch, preserving their order.
func MarshallEntries(entries []pool.Entry) ([]byte, error) {
	res := Response{
		Danmaku: make([]LPDanmaku, 0, len(entries)),
	}
	for _, e := range entries {
		res.Danmaku = append(res.Danmaku, LPDanmaku{ID: e.ID.String(), Danmaku: e.Danmaku})
	}
	return json.Marshal(res)
}
