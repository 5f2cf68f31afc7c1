package acl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sameehj/gatekeeper/pkg/store"
)

func openRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	backend := store.NewMemoryStore()
	reg, err := Open(backend, "master")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return reg, backend
}

func TestOpenSeedsMaster(t *testing.T) {
	t.Parallel()

	reg, backend := openRegistry(t)
	if !reg.Seeded() {
		t.Fatalf("expected fresh registry to be seeded")
	}
	if reg.Master() != "master" {
		t.Fatalf("expected master %q, got %q", "master", reg.Master())
	}
	if backend.Saves() != 1 {
		t.Fatalf("expected seeded master to be saved once, got %d saves", backend.Saves())
	}

	again, err := Open(backend, "someone-else")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.Seeded() || again.Master() != "master" {
		t.Fatalf("master must not change after first initialisation, got %q", again.Master())
	}
}

func TestOpenDefaultMaster(t *testing.T) {
	t.Parallel()

	reg, err := Open(store.NewMemoryStore(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if reg.Master() != DefaultMaster {
		t.Fatalf("expected built-in default master, got %q", reg.Master())
	}
}

func TestIsAllowedOperator(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	if _, err := reg.AddOperator("op"); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	cases := []struct {
		id       string
		operator bool
		master   bool
	}{
		{"master", true, true},
		{"op", true, false},
		{"stranger", false, false},
		{"", false, false},
	}
	for _, tc := range cases {
		if got := reg.IsAllowedOperator(tc.id); got != tc.operator {
			t.Errorf("IsAllowedOperator(%q) = %v, want %v", tc.id, got, tc.operator)
		}
		if got := reg.IsMaster(tc.id); got != tc.master {
			t.Errorf("IsMaster(%q) = %v, want %v", tc.id, got, tc.master)
		}
	}
}

func TestIsAllowedParticipant(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	mustAddChannel(t, reg, "open", ModeOpen)
	mustAddChannel(t, reg, "wl", ModeWhitelist)
	mustAddChannel(t, reg, "odd", Mode("all"))
	if _, err := reg.WhitelistParticipant("wl", "good-bot"); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	cases := []struct {
		channel string
		bot     string
		want    bool
	}{
		{"unknown", "good-bot", false},
		{"unknown", "", false},
		{"open", "good-bot", true},
		{"open", "never-seen", true},
		{"wl", "good-bot", true},
		{"wl", "other-bot", false},
		{"odd", "good-bot", false},
	}
	for _, tc := range cases {
		if got := reg.IsAllowedParticipant(tc.channel, tc.bot); got != tc.want {
			t.Errorf("IsAllowedParticipant(%q, %q) = %v, want %v", tc.channel, tc.bot, got, tc.want)
		}
	}
}

func TestAddChannelTwiceKeepsFirst(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	mustAddChannel(t, reg, "c", ModeWhitelist)

	err := reg.AddChannel("c", ModeOpen)
	if !errors.Is(err, ErrChannelExists) || !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected ErrChannelExists policy violation, got %v", err)
	}
	policy, ok := reg.Channel("c")
	if !ok || policy.Mode != ModeWhitelist {
		t.Fatalf("first policy must be unchanged, got %+v", policy)
	}
}

func TestRemoveChannel(t *testing.T) {
	t.Parallel()

	reg, backend := openRegistry(t)
	before := backend.Saves()
	if err := reg.RemoveChannel("absent"); err != nil {
		t.Fatalf("removing an absent channel should succeed: %v", err)
	}
	if backend.Saves() != before+1 {
		t.Fatalf("remove must persist even when absent")
	}

	mustAddChannel(t, reg, "c", ModeOpen)
	if err := reg.RemoveChannel("c"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := reg.Channel("c"); ok {
		t.Fatalf("channel still present after removal")
	}
	if reg.IsAllowedParticipant("c", "bot") {
		t.Fatalf("removed channel must fall back to deny")
	}
}

func TestWhitelistParticipant(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	mustAddChannel(t, reg, "open", ModeOpen)
	mustAddChannel(t, reg, "wl", ModeWhitelist)

	if _, err := reg.WhitelistParticipant("open", "bot"); !errors.Is(err, ErrNotWhitelistChannel) {
		t.Fatalf("expected ErrNotWhitelistChannel on open channel, got %v", err)
	}
	if policy, _ := reg.Channel("open"); len(policy.WhitelistedParticipants) != 0 {
		t.Fatalf("open channel must not be mutated, got %v", policy.WhitelistedParticipants)
	}
	if _, err := reg.WhitelistParticipant("missing", "bot"); !errors.Is(err, ErrNotWhitelistChannel) {
		t.Fatalf("expected ErrNotWhitelistChannel on missing channel, got %v", err)
	}

	added, err := reg.WhitelistParticipant("wl", "bot")
	if err != nil || !added {
		t.Fatalf("expected first whitelist to add, got added=%v err=%v", added, err)
	}
	added, err = reg.WhitelistParticipant("wl", "bot")
	if err != nil || added {
		t.Fatalf("expected second whitelist to be a no-op, got added=%v err=%v", added, err)
	}
	policy, _ := reg.Channel("wl")
	if diff := cmp.Diff([]string{"bot"}, policy.WhitelistedParticipants); diff != "" {
		t.Fatalf("whitelist mismatch (-want +got):\n%s", diff)
	}
}

func TestUnwhitelistParticipant(t *testing.T) {
	t.Parallel()

	reg, backend := openRegistry(t)
	mustAddChannel(t, reg, "open", ModeOpen)
	mustAddChannel(t, reg, "wl", ModeWhitelist)
	if _, err := reg.WhitelistParticipant("wl", "a"); err != nil {
		t.Fatalf("whitelist a: %v", err)
	}
	if _, err := reg.WhitelistParticipant("wl", "b"); err != nil {
		t.Fatalf("whitelist b: %v", err)
	}

	before := backend.Saves()
	for _, channel := range []string{"open", "missing"} {
		applied, err := reg.UnwhitelistParticipant(channel, "a")
		if err != nil || applied {
			t.Fatalf("unwhitelist on %s should silently do nothing, got applied=%v err=%v", channel, applied, err)
		}
	}
	if backend.Saves() != before {
		t.Fatalf("silent no-op must not persist")
	}

	applied, err := reg.UnwhitelistParticipant("wl", "a")
	if err != nil || !applied {
		t.Fatalf("unwhitelist: applied=%v err=%v", applied, err)
	}
	applied, err = reg.UnwhitelistParticipant("wl", "not-there")
	if err != nil || !applied {
		t.Fatalf("unwhitelist of absent id still applies: applied=%v err=%v", applied, err)
	}
	if backend.Saves() != before+2 {
		t.Fatalf("expected two persists, got %d", backend.Saves()-before)
	}
	policy, _ := reg.Channel("wl")
	if diff := cmp.Diff([]string{"b"}, policy.WhitelistedParticipants); diff != "" {
		t.Fatalf("whitelist mismatch (-want +got):\n%s", diff)
	}
}

func TestOperatorsIdempotent(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	for i, want := range []bool{true, false} {
		added, err := reg.AddOperator("x")
		if err != nil {
			t.Fatalf("add #%d: %v", i, err)
		}
		if added != want {
			t.Fatalf("add #%d: added=%v, want %v", i, added, want)
		}
	}
	if _, err := reg.AddOperator("y"); err != nil {
		t.Fatalf("add y: %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, reg.ListOperators()); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}

	if err := reg.RemoveOperator("absent"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, reg.ListOperators()); diff != "" {
		t.Fatalf("removing absent id changed operators (-want +got):\n%s", diff)
	}
	if err := reg.RemoveOperator("x"); err != nil {
		t.Fatalf("remove x: %v", err)
	}
	if diff := cmp.Diff([]string{"y"}, reg.ListOperators()); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterNeverStoredAsOperator(t *testing.T) {
	t.Parallel()

	reg, _ := openRegistry(t)
	added, err := reg.AddOperator("master")
	if err != nil || added {
		t.Fatalf("adding master should be a no-op, got added=%v err=%v", added, err)
	}
	if len(reg.ListOperators()) != 0 {
		t.Fatalf("master leaked into operators: %v", reg.ListOperators())
	}
	if err := reg.RemoveOperator("master"); err != nil {
		t.Fatalf("remove master: %v", err)
	}
	if !reg.IsAllowedOperator("master") {
		t.Fatalf("master must stay authorised")
	}
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	reg, backend := openRegistry(t)
	mustAddChannel(t, reg, "wl", ModeWhitelist)
	backend.FailSaves(errors.New("disk full"))

	if err := reg.AddChannel("new", ModeOpen); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := reg.Channel("new"); ok {
		t.Fatalf("failed add must not be visible")
	}
	if _, err := reg.WhitelistParticipant("wl", "bot"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if reg.IsAllowedParticipant("wl", "bot") {
		t.Fatalf("failed whitelist must not be visible")
	}
	if _, err := reg.AddOperator("op"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if reg.IsAllowedOperator("op") {
		t.Fatalf("failed operator add must not be visible")
	}
	if err := reg.RemoveChannel("wl"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := reg.Channel("wl"); !ok {
		t.Fatalf("failed remove must keep the channel")
	}
}

func TestOpenFailsWhenSeedCannotBeSaved(t *testing.T) {
	t.Parallel()

	backend := store.NewMemoryStore()
	backend.FailSaves(errors.New("read-only"))
	if _, err := Open(backend, "m"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRestartRestoresState(t *testing.T) {
	t.Parallel()

	backend, err := store.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	reg, err := Open(backend, "master")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustAddChannel(t, reg, "c1", ModeWhitelist)
	mustAddChannel(t, reg, "c2", ModeOpen)
	if _, err := reg.WhitelistParticipant("c1", "bot"); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := reg.AddOperator("op"); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	restarted, err := Open(backend, "ignored")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(reg.Channels(), restarted.Channels()); diff != "" {
		t.Fatalf("channels differ after restart (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(reg.ListOperators(), restarted.ListOperators()); diff != "" {
		t.Fatalf("operators differ after restart (-before +after):\n%s", diff)
	}
	if restarted.Master() != reg.Master() {
		t.Fatalf("master differs after restart")
	}
}

func TestOpenReadsLegacyDocuments(t *testing.T) {
	t.Parallel()

	backend := store.NewMemoryStore()
	users := `{"master":"m","users":["a","a","m","b"]}`
	channels := `{"c1":{"type":"whitelist","whitelistedBots":["bot"]},"c2":{"type":"all","whitelistedBots":[]}}`
	if err := backend.Save(OperatorsDocument, []byte(users)); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if err := backend.Save(ChannelsDocument, []byte(channels)); err != nil {
		t.Fatalf("seed channels: %v", err)
	}

	reg, err := Open(backend, "other")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if reg.Master() != "m" {
		t.Fatalf("expected master m, got %q", reg.Master())
	}
	if diff := cmp.Diff([]string{"a", "b"}, reg.ListOperators()); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}
	want := []ChannelEntry{
		{ID: "c1", Policy: ChannelPolicy{Mode: ModeWhitelist, WhitelistedParticipants: []string{"bot"}}},
		{ID: "c2", Policy: ChannelPolicy{Mode: ModeOpen, WhitelistedParticipants: []string{}}},
	}
	if diff := cmp.Diff(want, reg.Channels()); diff != "" {
		t.Fatalf("channels mismatch (-want +got):\n%s", diff)
	}
	if !reg.IsAllowedParticipant("c1", "bot") || !reg.IsAllowedParticipant("c2", "anyone") {
		t.Fatalf("legacy policies not honoured")
	}
}

func mustAddChannel(t *testing.T, reg *Registry, id string, mode Mode) {
	t.Helper()
	if err := reg.AddChannel(id, mode); err != nil {
		t.Fatalf("add channel %s: %v", id, err)
	}
}

func TestOpenMigratesOriginalStateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "allowed_users.json"), `{"master":"ORIG","users":["u1","ORIG"]}`)
	writeFile(t, filepath.Join(dir, "allowed_channels.json"),
		`{"c1":{"type":"all","whitelistedBots":[]},"c2":{"type":"whitelist","whitelistedBots":["b1"]}}`)

	backend, err := store.OpenFileStore(dir)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	reg, err := Open(backend, "")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	if reg.Seeded() || reg.Master() != "ORIG" {
		t.Fatalf("expected master from original files, got %q (seeded=%v)", reg.Master(), reg.Seeded())
	}
	if diff := cmp.Diff([]string{"u1"}, reg.ListOperators()); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}
	if !reg.IsAllowedParticipant("c1", "anyone") || !reg.IsAllowedParticipant("c2", "b1") || reg.IsAllowedParticipant("c2", "b2") {
		t.Fatalf("channel policies were not upgraded: %+v", reg.Channels())
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"operators.json", "channels.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}

	// The rewritten documents win over the original files from now on.
	writeFile(t, filepath.Join(dir, "allowed_users.json"), `{"master":"OTHER","users":[]}`)
	backend, err = store.OpenFileStore(dir)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	defer backend.Close()
	again, err := Open(backend, "")
	if err != nil {
		t.Fatalf("reopen registry: %v", err)
	}
	if again.Master() != "ORIG" || !again.IsAllowedOperator("u1") {
		t.Fatalf("expected migrated state after restart, got master %q operators %v", again.Master(), again.ListOperators())
	}
	if policy, ok := again.Channel("c2"); !ok || policy.Mode != ModeWhitelist {
		t.Fatalf("expected migrated c2 policy, got %+v %v", policy, ok)
	}
}

func TestOpenSeedsMasterIntoOriginalOperators(t *testing.T) {
	t.Parallel()

	backend := store.NewMemoryStore()
	if err := backend.Save(LegacyOperatorsDocument, []byte(`{"users":["u1"]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	reg, err := Open(backend, "M1")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	if !reg.Seeded() || reg.Master() != "M1" || !reg.IsAllowedOperator("u1") {
		t.Fatalf("expected seeded master with original operators, got %q %v", reg.Master(), reg.ListOperators())
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
