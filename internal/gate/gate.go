// Package gate implements the composable authorization filters applied
// to handlers before their body runs. Filters wrap handlers as ordinary
// middleware and are evaluated outermost-first; the conventional order is
// visibility, then ownership, then dependency.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	infoPrefix  = "ℹ"
	errorPrefix = "✖"
)

// typingInterval caps how often the courtesy typing signal is sent per
// chat.
const typingInterval = 3 * time.Second

// Gate builds authorization filters bound to one plugin's configuration.
type Gate struct {
	name      string
	cfg       plugin.Config
	global    plugin.Config
	messenger plugin.Messenger
	active    func(name string) bool
	logger    *zap.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// New creates a Gate for the named plugin. active reports whether a
// plugin is currently in the registry's active set.
func New(name string, cfg, global plugin.Config, messenger plugin.Messenger, active func(string) bool, logger *zap.Logger) *Gate {
	return &Gate{
		name:      name,
		cfg:       cfg,
		global:    global,
		messenger: messenger,
		active:    active,
		logger:    logger,
		limiters:  make(map[int64]*rate.Limiter),
	}
}

// Private admits only updates from a direct one-to-one conversation,
// replying with a denial notice otherwise. Bypassed entirely when the
// plugin's "private" setting is explicitly false.
func (g *Gate) Private() plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(ctx context.Context, u *models.Update) error {
			if g.cfg.IsFalse("private") {
				return next(ctx, u)
			}
			if u.Chat().Type.IsPrivate() {
				return next(ctx, u)
			}
			g.reply(ctx, u, fmt.Sprintf("%s Only allowed in a private chat", infoPrefix))
			return nil
		}
	}
}

// Public is the symmetric filter: admits only outside direct
// conversations unless the "public" setting is explicitly false.
func (g *Gate) Public() plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(ctx context.Context, u *models.Update) error {
			if g.cfg.IsFalse("public") {
				return next(ctx, u)
			}
			if !u.Chat().Type.IsPrivate() {
				return next(ctx, u)
			}
			g.reply(ctx, u, fmt.Sprintf("%s Only allowed in a public chat", infoPrefix))
			return nil
		}
	}
}

// OwnerOnly admits only users present in the global admin id list or the
// plugin's own "admins" list. Denial is silent: no message is sent.
// Bypassed when the plugin's "owner" setting is explicitly false.
func (g *Gate) OwnerOnly() plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(ctx context.Context, u *models.Update) error {
			if g.cfg.IsFalse("owner") {
				return next(ctx, u)
			}

			from := u.From()
			if from == nil {
				return nil
			}
			if contains(g.global.GetInt64s("admin", "ids"), from.ID) {
				return next(ctx, u)
			}
			if contains(g.cfg.GetInt64s("admins"), from.ID) {
				return next(ctx, u)
			}
			return nil
		}
	}
}

// Dependencies admits only while every plugin named in this plugin's
// "dependencies" list is active. A missing dependency yields a denial
// reply naming it. A malformed list (anything but a list) logs an error
// and fails open; an actually-missing dependency fails closed.
func (g *Gate) Dependencies() plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(ctx context.Context, u *models.Update) error {
			raw := g.cfg.Get("dependencies")
			deps, err := cast.ToSliceE(raw)
			if err != nil {
				g.logger.Error("dependencies not defined as list",
					zap.String("plugin", g.name),
				)
				return next(ctx, u)
			}

			for _, d := range deps {
				dep := strings.ToLower(cast.ToString(d))
				if !g.active(dep) {
					g.reply(ctx, u, fmt.Sprintf(
						"%s Plugin '%s' is missing dependency '%s'",
						errorPrefix, g.name, dep))
					return nil
				}
			}
			return next(ctx, u)
		}
	}
}

// Typing sends the courtesy typing signal before invoking the handler,
// rate-limited per chat. Never suppresses execution.
func (g *Gate) Typing() plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(ctx context.Context, u *models.Update) error {
			chat := u.Chat()
			if chat.ID != 0 && g.limiter(chat.ID).Allow() {
				if err := g.messenger.SendAction(ctx, chat.ID, plugin.ActionTyping); err != nil {
					g.logger.Debug("typing signal failed", zap.Error(err))
				}
			}
			return next(ctx, u)
		}
	}
}

func (g *Gate) limiter(chatID int64) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Every(typingInterval), 1)
		g.limiters[chatID] = l
	}
	return l
}

// reply sends a denial notice to the update's chat. Failures are logged
// only; denial messaging is best effort.
func (g *Gate) reply(ctx context.Context, u *models.Update, text string) {
	chat := u.Chat()
	if chat.ID == 0 {
		return
	}
	if _, err := g.messenger.SendMessage(ctx, chat.ID, text); err != nil {
		g.logger.Debug("denial notice failed",
			zap.String("plugin", g.name),
			zap.Error(err),
		)
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
