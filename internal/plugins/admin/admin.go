// Package admin implements the built-in owner-only plugin for managing
// plugins and broadcasting admin notifications at runtime.
package admin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/botforge/internal/backup"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

// Plugin exposes enable/disable/broadcast/backup subcommands to bot
// admins. Denial is silent for non-admins.
type Plugin struct {
	pctx plugin.Context
}

// New creates the admin plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "admin" }

func (p *Plugin) Setup(ctx context.Context, pc plugin.Context) error {
	p.pctx = pc
	return pc.RegisterHandler(plugin.Handler{
		Command: pc.Handle(),
		Fn:      p.handleAdmin,
		Use: []plugin.Middleware{
			pc.Private(),
			pc.OwnerOnly(),
		},
	})
}

func (p *Plugin) Teardown() error { return nil }

func (p *Plugin) handleAdmin(ctx context.Context, u *models.Update) error {
	chat := u.Chat()
	args := u.Args()

	if len(args) == 0 {
		usage, ok := p.pctx.Usage(nil)
		if !ok {
			return fmt.Errorf("admin: usage resource not readable")
		}
		_, err := p.pctx.Messenger().SendMessage(ctx, chat.ID, usage)
		return err
	}

	switch args[0] {
	case "enable", "disable":
		if len(args) < 2 {
			return p.reply(ctx, chat.ID, fmt.Sprintf("Missing plugin name for '%s'", args[0]))
		}
		name := strings.ToLower(args[1])

		var err error
		if args[0] == "enable" {
			err = p.pctx.EnablePlugin(name)
		} else {
			err = p.pctx.DisablePlugin(name)
		}
		if err != nil {
			return p.reply(ctx, chat.ID, fmt.Sprintf("Not possible to %s '%s': %v", args[0], name, err))
		}
		return p.reply(ctx, chat.ID, fmt.Sprintf("Plugin '%s' %sd", name, args[0]))

	case "backup":
		global := p.pctx.GlobalConfig()
		pluginsDir := global.GetString("plugins", "dir")
		if pluginsDir == "" {
			pluginsDir = "plugins"
		}
		dataDir := global.GetString("data", "dir")
		if dataDir == "" {
			dataDir = "data"
		}

		out := filepath.Join(p.pctx.DataPath(), time.Now().UTC().Format("backup-20060102-150405.tar.gz"))
		if err := backup.Create(pluginsDir, dataDir, out); err != nil {
			return p.reply(ctx, chat.ID, fmt.Sprintf("Backup failed: %v", err))
		}
		return p.reply(ctx, chat.ID, fmt.Sprintf("Backup written to '%s'", out))

	case "broadcast":
		if len(args) < 2 {
			return p.reply(ctx, chat.ID, "Missing broadcast text")
		}
		p.pctx.Notify(strings.Join(args[1:], " "))
		return p.reply(ctx, chat.ID, "Broadcast sent")

	default:
		return p.reply(ctx, chat.ID, fmt.Sprintf("Unknown subcommand '%s'", args[0]))
	}
}

func (p *Plugin) reply(ctx context.Context, chatID int64, text string) error {
	_, err := p.pctx.Messenger().SendMessage(ctx, chatID, text)
	return err
}
