package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HerbHall/botforge/internal/plugins/about"
	"github.com/HerbHall/botforge/internal/plugins/admin"
	"github.com/HerbHall/botforge/internal/plugins/feedback"
	"github.com/HerbHall/botforge/internal/plugins/usage"
	"github.com/HerbHall/botforge/internal/testutil"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
)

// writeResources lays out the resource files the built-in plugins load.
func writeResources(t *testing.T, pluginsDir string) {
	t.Helper()

	files := map[string]string{
		"about/resources/info.md":                  "The test bot.",
		"admin/resources/admin.md":                 "`/{{handle}} enable <plugin>`",
		"feedback/resources/feedback.md":           "`/{{handle}} <message>`",
		"feedback/resources/create_feedback.sql":   "CREATE TABLE IF NOT EXISTS feedback (user_id INTEGER, name TEXT, username TEXT, feedback TEXT)",
		"feedback/resources/insert_feedback.sql":   "INSERT INTO feedback (user_id, name, username, feedback) VALUES (?, ?, ?, ?)",
		"usage/resources/create_usage.sql":         "CREATE TABLE IF NOT EXISTS usage (chat_id INTEGER, user_id INTEGER, name TEXT, command TEXT)",
		"usage/resources/insert_usage.sql":         "INSERT INTO usage (chat_id, user_id, name, command) VALUES (?, ?, ?, ?)",
	}
	for rel, content := range files {
		path := filepath.Join(pluginsDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func loadBuiltins(t *testing.T) (*Registry, *env) {
	t.Helper()

	e := newEnv(t)
	writeResources(t, e.svc.PluginsDir)

	r := New(e.svc, testutil.Logger())
	err := r.Load(context.Background(), about.New(), feedback.New(), usage.New(), admin.New())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	for _, name := range []string{"about", "feedback", "usage", "admin"} {
		if !r.Active(name) {
			t.Fatalf("built-in plugin %q failed to load", name)
		}
	}
	return r, e
}

func TestBuiltinAboutRepliesWithInfo(t *testing.T) {
	_, e := loadBuiltins(t)

	e.svc.Dispatcher.Dispatch(context.Background(), testutil.NewUpdate("/about"))

	msgs := e.messenger.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "The test bot." {
		t.Errorf("reply = %q, want the info resource", msgs[0].Text)
	}
}

func TestBuiltinFeedbackStoresAndAcks(t *testing.T) {
	_, e := loadBuiltins(t)

	e.svc.Dispatcher.Dispatch(context.Background(), testutil.NewUpdate("/feedback more cat pictures"))

	var ack string
	for _, m := range e.messenger.Messages() {
		ack = m.Text
	}
	if ack != "Thanks for letting us know ❤" {
		t.Errorf("ack = %q, want the thank-you reply", ack)
	}

	res := e.svc.Storage.Execute(context.Background(),
		"SELECT username, feedback FROM feedback", nil, plugin.Target{Plugin: "feedback"})
	if !res.Success {
		t.Fatalf("select feedback: %s", res.Message)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d feedback rows, want 1", len(res.Rows))
	}
	if res.Rows[0][0] != "alice" || res.Rows[0][1] != "more cat pictures" {
		t.Errorf("stored row = %v", res.Rows[0])
	}
}

func TestBuiltinFeedbackWithoutTextShowsUsage(t *testing.T) {
	_, e := loadBuiltins(t)

	e.svc.Dispatcher.Dispatch(context.Background(), testutil.NewUpdate("/feedback"))

	msgs := e.messenger.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "Usage:\n`/feedback <message>`" {
		t.Errorf("reply = %q, want usage text with substituted handle", msgs[0].Text)
	}
}

func TestBuiltinUsageTracksPublicCommands(t *testing.T) {
	_, e := loadBuiltins(t)
	ctx := context.Background()

	e.svc.Dispatcher.Dispatch(ctx, testutil.NewUpdate("/about"))
	e.svc.Dispatcher.Dispatch(ctx, testutil.NewUpdate("/about", testutil.WithChat(1, models.ChatPrivate)))
	e.svc.Dispatcher.Dispatch(ctx, testutil.NewUpdate("not a command"))

	// The tracker runs async on group 1; poll until the row lands.
	deadline := time.Now().Add(3 * time.Second)
	var rows [][]any
	for time.Now().Before(deadline) {
		res := e.svc.Storage.Execute(ctx, "SELECT chat_id, command FROM usage", nil, plugin.Target{Plugin: "usage"})
		if res.Success && len(res.Rows) > 0 {
			rows = res.Rows
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(rows) != 1 {
		t.Fatalf("got %d usage rows, want 1 (private chats and plain messages excluded)", len(rows))
	}
	if rows[0][1] != "about" {
		t.Errorf("tracked command = %v, want about", rows[0][1])
	}
}

func TestBuiltinAdminDisablesPlugin(t *testing.T) {
	r, e := loadBuiltins(t)

	adminUpdate := func(text string) *models.Update {
		return testutil.NewUpdate(text,
			testutil.WithChat(50, models.ChatPrivate),
			testutil.WithUser(9000, "owner"),
		)
	}

	e.svc.Dispatcher.Dispatch(context.Background(), adminUpdate("/admin disable about"))

	if r.Active("about") {
		t.Fatal("about still active after admin disable")
	}

	e.messenger.Reset()
	e.svc.Dispatcher.Dispatch(context.Background(), testutil.NewUpdate("/about"))
	if got := len(e.messenger.Messages()); got != 0 {
		t.Errorf("disabled plugin replied %d times, want 0", got)
	}

	e.svc.Dispatcher.Dispatch(context.Background(), adminUpdate("/admin enable about"))
	if !r.Active("about") {
		t.Fatal("about still inactive after admin enable")
	}
}

func TestBuiltinAdminIgnoresNonOwner(t *testing.T) {
	r, e := loadBuiltins(t)

	u := testutil.NewUpdate("/admin disable about",
		testutil.WithChat(50, models.ChatPrivate),
		testutil.WithUser(1234, "mallory"),
	)
	e.svc.Dispatcher.Dispatch(context.Background(), u)

	if !r.Active("about") {
		t.Error("non-owner managed to disable a plugin")
	}
	if got := len(e.messenger.Messages()); got != 0 {
		t.Errorf("ownership denial must be silent, got %d messages", got)
	}
}
