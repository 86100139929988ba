package model

// [DANMAKU] CORE ENTITY: A SINGLE TIMED OVERLAY COMMENT
// The same shape travels in both directions on the wire, so the JSON tags are the protocol.
type Danmaku struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Color  string `json:"color"`
	Size   uint32 `json:"size"`
}
