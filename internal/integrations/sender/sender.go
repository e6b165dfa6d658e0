package sender

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnsupportedChannel: для канала подписчика не настроен отправитель.
var ErrUnsupportedChannel = errors.New("sender: unsupported channel")

// Message: уже отрендеренное уведомление. HTML используется только email-каналом.
type Message struct {
	Channel string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Router выбирает Sender по каналу сообщения.
type Router struct {
	byChannel map[string]Sender
}

func NewRouter(byChannel map[string]Sender) *Router {
	m := make(map[string]Sender, len(byChannel))
	for ch, s := range byChannel {
		if s != nil {
			m[ch] = s
		}
	}
	return &Router{byChannel: m}
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	s, ok := r.byChannel[msg.Channel]
	if !ok {
		return errors.Wrapf(ErrUnsupportedChannel, "channel %q", msg.Channel)
	}
	return s.Send(ctx, msg)
}

// Permanent помечает ошибку, повтор которой бессмысленен (например, 4xx от провайдера).
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p) || errors.Is(err, ErrUnsupportedChannel)
}
