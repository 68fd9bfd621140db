// Package about implements the built-in plugin that replies with the
// bot's info text.
package about

import (
	"context"
	"fmt"

	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

const infoFile = "info.md"

// Plugin replies to its handle with the info.md resource.
type Plugin struct {
	pctx plugin.Context
}

// New creates the about plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "about" }

func (p *Plugin) Setup(ctx context.Context, pc plugin.Context) error {
	p.pctx = pc
	return pc.RegisterHandler(plugin.Handler{
		Command: pc.Handle(),
		Fn:      p.handleAbout,
		Use:     []plugin.Middleware{pc.Typing()},
	})
}

func (p *Plugin) Teardown() error { return nil }

func (p *Plugin) handleAbout(ctx context.Context, u *models.Update) error {
	text, ok := p.pctx.Resource(infoFile)
	if !ok {
		return fmt.Errorf("about: resource %q not readable", infoFile)
	}

	_, err := p.pctx.Messenger().SendMessage(ctx, u.Chat().ID, text)
	return err
}
