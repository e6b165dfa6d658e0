package notifier

import (
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/pkg/errors"
)

const subjectTmpl = `Update: {{.Title}} ({{.TrackingNumber}}) — {{.Checkpoint.Label}}`

const textTmpl = `Update for {{.Title}} ({{.TrackingNumber}}):
{{.Checkpoint.Label}}{{with .Checkpoint.Note}}: {{.}}{{end}}
Time: {{time .Checkpoint.Timestamp}}
Coords: {{coord .Checkpoint.Lat}}, {{coord .Checkpoint.Lng}}
Track: {{.TrackURL}}`

const htmlTmpl = `<p>Update for <strong>{{.Title}}</strong> ({{.TrackingNumber}}):</p>
<p><strong>{{.Checkpoint.Label}}</strong>{{with .Checkpoint.Note}}: {{.}}{{end}}</p>
<p>Time: {{time .Checkpoint.Timestamp}}</p>
<p>Coords: {{coord .Checkpoint.Lat}}, {{coord .Checkpoint.Lng}}</p>
<p><a href="{{.TrackURL}}">View on map</a></p>
<hr>
<p style="font-size:12px;color:#666">Unsubscribe via the tracking page.</p>
`

var funcs = map[string]any{
	"time":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"coord": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}

var (
	subjectT = texttemplate.Must(texttemplate.New("subject").Funcs(funcs).Parse(subjectTmpl))
	textT    = texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(textTmpl))
	htmlT    = htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(htmlTmpl))
)

// Render превращает запрос в готовое к отправке сообщение.
func Render(req messages.NotificationRequested) (sender.Message, error) {
	var subj, text, html strings.Builder
	if err := subjectT.Execute(&subj, req); err != nil {
		return sender.Message{}, errors.Wrap(err, "render subject")
	}
	if err := textT.Execute(&text, req); err != nil {
		return sender.Message{}, errors.Wrap(err, "render text")
	}
	if err := htmlT.Execute(&html, req); err != nil {
		return sender.Message{}, errors.Wrap(err, "render html")
	}
	return sender.Message{
		Channel: req.Channel,
		To:      req.Contact,
		Subject: subj.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
