package notify

import (
	"context"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/jkivela/packwatch/internal/errors"
)

// PushSender delivers operator push notifications via shoutrrr. One sender
// serves all configured URLs.
type PushSender struct {
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewPushSender validates the service URLs and builds the router.
func NewPushSender(urls []string, timeout time.Duration) (*PushSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one push URL is required").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &PushSender{sender: sender, timeout: timeout}, nil
}

// Send delivers one push notification to every configured service.
func (p *PushSender) Send(ctx context.Context, title, message string) error {
	_ = ctx // the router handles its own timeouts

	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	errs := p.sender.Send(message, &params)
	for _, e := range errs {
		if e != nil {
			return errors.New(e).
				Component("notify").
				Category(errors.CategoryNotification).
				Build()
		}
	}
	return nil
}
