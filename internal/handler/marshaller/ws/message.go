package wsmarshaller

import "github.com/webitel/danmaku-relay/internal/domain/model"

// wsDanmaku is the inbound wire shape. Pointer fields tell a missing (or null) key apart from a zero value.
type wsDanmaku struct {
	Sender *string `json:"sender"`
	Text   *string `json:"text"`
	Color  *string `json:"color"`
	Size   *uint32 `json:"size"`
}

func (w *wsDanmaku) toModel() (model.Danmaku, error) {
	switch {
	case w.Sender == nil:
		return model.Danmaku{}, missing("sender")
	case w.Text == nil:
		return model.Danmaku{}, missing("text")
	case w.Color == nil:
		return model.Danmaku{}, missing("color")
	case w.Size == nil:
		return model.Danmaku{}, missing("size")
	}

	return model.Danmaku{
		Sender: *w.Sender,
		Text:   *w.Text,
		Color:  *w.Color,
		Size:   *w.Size,
	}, nil
}
