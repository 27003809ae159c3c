package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memgate-go/internal/config"
	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/storage/memory"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// sharedStore survives the Close each command issues.
type sharedStore struct {
	*memory.Store
}

func (sharedStore) Close() error { return nil }

type recordingTransport struct {
	mu   sync.Mutex
	sent []service.Message
	fail map[string]bool
}

func (r *recordingTransport) Send(_ context.Context, msg service.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return errors.New("relay refused")
	}
	r.sent = append(r.sent, msg)
	return nil
}

type harness struct {
	dir       string
	store     *memory.Store
	transport *recordingTransport
	stdout    bytes.Buffer
	stderr    bytes.Buffer
}

const testConfig = `
storage:
  driver: memory
log:
  level: error
mail:
  host: smtp.example.com
  from_address: noreply@example.com
issuer:
  invite_link: https://discord.gg/abc
  pacing:
    mode: none
  groups:
    - name: engineering
      roster_file: eng.csv
      template_file: eng.html
      privilege_id: "111"
redeemer:
  bot_token: secret-bot-token
  guild_id: "1"
  channel_id: "2"
`

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:       t.TempDir(),
		store:     memory.New(),
		transport: &recordingTransport{fail: map[string]bool{}},
	}
	h.write(t, "memgate.yaml", testConfig)
	h.write(t, "eng.csv", "email,firstName,lastName\nAnn@X.com,Ann,Lee\nbob@x.com,Bob,\nnot-an-email,Eve,\n")
	h.write(t, "eng.html", "<p>Hi {{FIRST_NAME}}, your code is {{VERIFICATION_TOKEN}}</p>")
	return h
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(h.dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	env := &Env{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		OpenStore: func(context.Context, *config.Config, logger.Logger) (service.MemberRepository, error) {
			return sharedStore{h.store}, nil
		},
		NewTransport: func(*config.Config) (service.Transport, error) {
			return h.transport, nil
		},
	}
	app := App(env)
	app.ExitErrHandler = func(*cli.Context, error) {}
	argv := append([]string{"memgate-issuer", "--config", filepath.Join(h.dir, "memgate.yaml")}, args...)
	return app.RunContext(context.Background(), argv)
}

func TestDBInit(t *testing.T) {
	h := newHarness(t)
	if err := h.run("db", "init"); err != nil {
		t.Fatalf("db init error = %v", err)
	}
	if got := h.stdout.String(); !strings.Contains(got, "memory") {
		t.Errorf("output = %q, want driver name", got)
	}
}

func TestInviteSend(t *testing.T) {
	h := newHarness(t)
	if err := h.run("-o", "json", "invite", "send"); err != nil {
		t.Fatalf("invite send error = %v", err)
	}

	var report service.BatchReport
	if err := json.Unmarshal(h.stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, h.stdout.String())
	}
	if len(report.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(report.Groups))
	}
	g := report.Groups[0]
	if g.Sent != 2 || g.Invalid != 1 {
		t.Errorf("report = %+v, want 2 sent and 1 invalid", g)
	}
	if len(h.transport.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(h.transport.sent))
	}
	if body := h.transport.sent[0].HTMLBody; strings.Contains(body, "{{") {
		t.Errorf("body not rendered: %q", body)
	}

	m, err := h.store.FindByContact(context.Background(), "ann@x.com")
	if err != nil {
		t.Fatalf("FindByContact() error = %v", err)
	}
	if m.PrivilegeID != "111" || m.RoleLabel != "engineering" || m.Verified {
		t.Errorf("member = %+v", m)
	}

	// A second run finds everyone already invited.
	if err := h.run("-o", "json", "invite", "send", "--group", "engineering"); err != nil {
		t.Fatalf("second run error = %v", err)
	}
	report = service.BatchReport{}
	if err := json.Unmarshal(h.stdout.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if got := report.Groups[0]; got.Sent != 0 || got.AlreadyInvited != 2 {
		t.Errorf("second run = %+v, want 2 already invited", got)
	}
}

func TestInviteSend_Failures(t *testing.T) {
	h := newHarness(t)
	h.transport.fail["bob@x.com"] = true

	err := h.run("invite", "send")
	var exit cli.ExitCoder
	if !errors.As(err, &exit) || exit.ExitCode() != 2 {
		t.Fatalf("invite send error = %v, want exit code 2", err)
	}
	if _, err := h.store.FindByContact(context.Background(), "bob@x.com"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("failed send stored a member: err = %v", err)
	}
	if got := h.stdout.String(); !strings.Contains(got, "SEND_FAILED") {
		t.Errorf("table output missing header:\n%s", got)
	}
}

func TestInviteSend_UnknownGroup(t *testing.T) {
	h := newHarness(t)
	err := h.run("invite", "send", "--group", "sales")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
	if len(h.transport.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(h.transport.sent))
	}
}

func TestMemberListAndShow(t *testing.T) {
	h := newHarness(t)
	if err := h.run("invite", "send"); err != nil {
		t.Fatal(err)
	}
	m, err := h.store.FindByContact(context.Background(), "ann@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.MarkVerified(context.Background(), m.Token, "discord-42"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want []string
		not  []string
	}{
		{"all", []string{"member", "list"}, []string{"ann@x.com", "bob@x.com"}, nil},
		{"verified", []string{"member", "list", "--verified"}, []string{"ann@x.com"}, []string{"bob@x.com"}},
		{"pending", []string{"member", "list", "--pending"}, []string{"bob@x.com"}, []string{"ann@x.com"}},
		{"other group", []string{"member", "list", "--group", "sales"}, []string{"EMAIL"}, []string{"ann@x.com"}},
		{"show", []string{"member", "show", "ANN@x.com"}, []string{"discord-42", "verified"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.run(tt.args...); err != nil {
				t.Fatalf("run(%v) error = %v", tt.args, err)
			}
			out := h.stdout.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(out, n) {
					t.Errorf("output contains %q:\n%s", n, out)
				}
			}
			if strings.Contains(out, m.Token) {
				t.Error("output leaks a token")
			}
		})
	}
}

func TestMemberList_Exclusive(t *testing.T) {
	h := newHarness(t)
	if err := h.run("member", "list", "--verified", "--pending"); err == nil {
		t.Error("member list with both state flags should fail")
	}
}

func TestMemberShow_NotFound(t *testing.T) {
	h := newHarness(t)
	if err := h.run("member", "show", "nobody@x.com"); err == nil {
		t.Error("member show for unknown email should fail")
	}
}

func TestConfigShow(t *testing.T) {
	h := newHarness(t)
	if err := h.run("config", "show"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	out := h.stdout.String()
	if strings.Contains(out, "secret-bot-token") {
		t.Errorf("config show leaks the bot token:\n%s", out)
	}
	if !strings.Contains(out, "smtp.example.com") {
		t.Errorf("config show missing mail host:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		target  string
		wantErr bool
	}{
		{"issuer", false},
		{"redeemer", false},
		{"all", false},
		{"nonsense", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			h := newHarness(t)
			err := h.run("config", "validate", "--for", tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("config validate --for %s error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
		})
	}

	h := newHarness(t)
	h.write(t, "memgate.yaml", "storage:\n  driver: memory\n")
	if err := h.run("config", "validate", "--for", "issuer"); err == nil {
		t.Error("config validate should fail without mail and groups")
	}
}

func TestBadOutputFormat(t *testing.T) {
	h := newHarness(t)
	if err := h.run("-o", "xml", "db", "init"); err == nil {
		t.Error("unknown output format should fail")
	}
}
