// Package usage implements the built-in plugin that records command
// usage in public chats for later analysis.
package usage

import (
	"context"
	"fmt"

	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

const (
	tableName  = "usage"
	createStmt = "create_usage.sql"
	insertStmt = "insert_usage.sql"
)

// Plugin observes every command update on group 1, asynchronously, so
// tracking never delays the command's own handler.
type Plugin struct {
	pctx plugin.Context
}

// New creates the usage plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "usage" }

func (p *Plugin) Setup(ctx context.Context, pc plugin.Context) error {
	p.pctx = pc

	if !pc.DB().TableExists(ctx, tableName, plugin.Target{}) {
		stmt, ok := pc.Resource(createStmt)
		if !ok {
			return fmt.Errorf("usage: missing resource %q", createStmt)
		}
		if res := pc.DB().Execute(ctx, stmt, nil, plugin.Target{}); !res.Success {
			return fmt.Errorf("usage: create table: %s", res.Message)
		}
	}

	return pc.RegisterHandler(plugin.Handler{
		Fn:    p.track,
		Group: 1,
		Async: true,
	})
}

func (p *Plugin) Teardown() error { return nil }

func (p *Plugin) track(ctx context.Context, u *models.Update) error {
	if u.Command() == "" {
		return nil
	}

	chat := u.Chat()
	if chat.Type.IsPrivate() {
		return nil
	}

	from := u.From()
	if from == nil || from.IsBot {
		return nil
	}

	stmt, ok := p.pctx.Resource(insertStmt)
	if !ok {
		return fmt.Errorf("usage: missing resource %q", insertStmt)
	}

	params := []any{chat.ID, from.ID, from.DisplayName(), u.Command()}
	if res := p.pctx.DB().Execute(ctx, stmt, params, plugin.Target{}); !res.Success {
		return fmt.Errorf("usage: insert: %s", res.Message)
	}
	return nil
}
