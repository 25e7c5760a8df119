package notify

import "github.com/b2pix/engine/internal/external"

var (
	_ external.Notifier = (*EmailSink)(nil)
	_ external.Notifier = (*TrelloSink)(nil)
)
