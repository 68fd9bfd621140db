// Package feedback implements the built-in plugin that stores user
// feedback and relays it to the admins.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

const (
	tableName  = "feedback"
	createStmt = "create_feedback.sql"
	insertStmt = "insert_feedback.sql"

	// ackTTL is how long the thank-you reply stays visible in groups.
	ackTTL = 30 * time.Second
)

// Plugin stores feedback rows in its own database and notifies admins.
type Plugin struct {
	pctx plugin.Context
}

// New creates the feedback plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "feedback" }

func (p *Plugin) Setup(ctx context.Context, pc plugin.Context) error {
	p.pctx = pc

	if !pc.DB().TableExists(ctx, tableName, plugin.Target{}) {
		stmt, ok := pc.Resource(createStmt)
		if !ok {
			return fmt.Errorf("feedback: missing resource %q", createStmt)
		}
		if res := pc.DB().Execute(ctx, stmt, nil, plugin.Target{}); !res.Success {
			return fmt.Errorf("feedback: create table: %s", res.Message)
		}
	}

	return pc.RegisterHandler(plugin.Handler{
		Command: pc.Handle(),
		Fn:      p.handleFeedback,
		Use:     []plugin.Middleware{pc.Typing()},
	})
}

func (p *Plugin) Teardown() error { return nil }

func (p *Plugin) handleFeedback(ctx context.Context, u *models.Update) error {
	chat := u.Chat()

	args := u.Args()
	if len(args) == 0 {
		usage, ok := p.pctx.Usage(nil)
		if !ok {
			return fmt.Errorf("feedback: usage resource not readable")
		}
		_, err := p.pctx.Messenger().SendMessage(ctx, chat.ID, "Usage:\n"+usage)
		return err
	}

	from := u.From()
	if from == nil {
		return nil
	}

	text := strings.Join(args, " ")
	p.pctx.Notify(fmt.Sprintf("Feedback from %s: %s", from.DisplayName(), text))

	stmt, ok := p.pctx.Resource(insertStmt)
	if !ok {
		return fmt.Errorf("feedback: missing resource %q", insertStmt)
	}
	params := []any{from.ID, from.DisplayName(), from.Username, text}
	if res := p.pctx.DB().Execute(ctx, stmt, params, plugin.Target{}); !res.Success {
		return fmt.Errorf("feedback: insert: %s", res.Message)
	}

	ack, err := p.pctx.Messenger().SendMessage(ctx, chat.ID, "Thanks for letting us know ❤")
	if err != nil {
		return err
	}
	ack.Chat = chat
	p.pctx.RemoveMessage(ack, ackTTL, false, true)
	return nil
}
