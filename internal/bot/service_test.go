package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/codegate/internal/access"
	"github.com/dharsanguruparan/codegate/internal/broadcast"
	"github.com/dharsanguruparan/codegate/internal/catalog"
	"github.com/dharsanguruparan/codegate/internal/codes"
	"github.com/dharsanguruparan/codegate/internal/delivery"
	"github.com/dharsanguruparan/codegate/internal/membership"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/processing"
	"github.com/dharsanguruparan/codegate/internal/s3storage"
	"github.com/dharsanguruparan/codegate/internal/scheduler"
	"github.com/dharsanguruparan/codegate/internal/signing"
	"github.com/dharsanguruparan/codegate/internal/storage"
	"github.com/dharsanguruparan/codegate/internal/upload"
)

const (
	ownerID  = int64(1)
	uploader = int64(2)
	visitor  = int64(3)
)

type outbound struct {
	chat     int64
	id       int
	text     string
	rows     [][]Button
	kind     model.Kind
	fileID   string
	deleted  bool
	edited   bool
	callback string
}

type fakeTransport struct {
	mu       sync.Mutex
	next     int
	out      []*outbound
	answers  []string
	updates  chan Event
	failSend map[int64]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan Event), failSend: map[int64]bool{}}
}

func (f *fakeTransport) push(o *outbound) int {
	f.next++
	o.id = f.next
	f.out = append(f.out, o)
	return o.id
}

func (f *fakeTransport) Updates(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-f.updates:
				if !ok {
					return
				}
				out <- ev
			}
		}
	}()
	return out
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend[chatID] {
		return 0, errors.New("Forbidden: bot was blocked by the user")
	}
	return f.push(&outbound{chat: chatID, text: text}), nil
}

func (f *fakeTransport) SendPrompt(_ context.Context, chatID int64, text string, rows [][]Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.push(&outbound{chat: chatID, text: text, rows: rows}), nil
}

func (f *fakeTransport) SendArtifact(_ context.Context, chatID int64, kind model.Kind, fileID, caption string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.push(&outbound{chat: chatID, kind: kind, fileID: fileID, text: caption}), nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.out {
		if o.chat == chatID && o.id == messageID && !o.deleted {
			o.deleted = true
			return nil
		}
	}
	return errors.New("message to delete not found")
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.out {
		if o.chat == chatID && o.id == messageID {
			o.text = text
			o.edited = true
			return nil
		}
	}
	return errors.New("message to edit not found")
}

func (f *fakeTransport) last(chatID int64) *outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.out) - 1; i >= 0; i-- {
		if f.out[i].chat == chatID {
			return f.out[i]
		}
	}
	return nil
}

func (f *fakeTransport) visible(chatID int64) []*outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*outbound
	for _, o := range f.out {
		if o.chat == chatID && !o.deleted {
			res = append(res, o)
		}
	}
	return res
}

type directory struct {
	mu      sync.Mutex
	members map[int64]bool
}

func (d *directory) MemberStatus(_ context.Context, _ string, userID int64) (membership.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[userID] {
		return membership.Member{Status: membership.StatusMember}, nil
	}
	return membership.Member{Status: membership.StatusLeft}, nil
}

func (d *directory) join(id int64) {
	d.mu.Lock()
	d.members[id] = true
	d.mu.Unlock()
}

type fakeBackup struct {
	snaps []s3storage.Snapshot
}

func (b *fakeBackup) UploadSnapshot(_ context.Context, snap s3storage.Snapshot) (string, error) {
	b.snaps = append(b.snaps, snap)
	return fmt.Sprintf("catalog/%d.json", len(b.snaps)), nil
}

func (b *fakeBackup) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.local/" + key, nil
}

type harness struct {
	store     *storage.MemoryStore
	transport *fakeTransport
	dir       *directory
	clock     time.Time
	scheduler *scheduler.Scheduler
	backup    *fakeBackup
	signer    *signing.Signer
	svc       *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     storage.NewMemoryStore(),
		transport: newFakeTransport(),
		dir:       &directory{members: map[int64]bool{}},
		clock:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		backup:    &fakeBackup{},
		signer:    signing.NewSigner([]byte("secret")),
	}
	now := func() time.Time { return h.clock }
	registry := access.NewRegistry(ownerID, h.store.Uploaders(), nil)
	cat := catalog.New(h.store.Artifacts(), nil, catalog.WithClock(now))
	h.scheduler = scheduler.New(h.store.Obligations(), h.transport, nil, nil, scheduler.WithClock(now))
	gate := membership.NewGate(h.dir, "@backup", nil)
	svc, err := New(Deps{
		Transport:   h.transport,
		Registry:    registry,
		Sessions:    upload.NewManager(cat, registry, nil),
		Dispatcher:  delivery.NewDispatcher(gate, cat, h.transport, h.scheduler, nil, nil),
		Catalog:     cat,
		Users:       h.store.Users(),
		Obligations: h.store.Obligations(),
		Broadcaster: broadcast.New(h.store.Users(), h.transport, 1000, nil, nil),
		Signer:      h.signer,
		Pool:        processing.New(2, nil),
		Backup:      h.backup,
		JoinURL:     "https://t.me/backup",
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func user(id int64) model.Identity {
	return model.Identity{ID: id, FirstName: fmt.Sprintf("user%d", id)}
}

func (h *harness) command(from int64, cmd, args string) {
	h.svc.Handle(context.Background(), Event{Kind: EventCommand, From: user(from), ChatID: from, Command: cmd, Args: args})
}

func (h *harness) text(from int64, text string) {
	h.svc.Handle(context.Background(), Event{Kind: EventText, From: user(from), ChatID: from, Text: text})
}

func (h *harness) media(from int64, kind model.Kind, fileID string) {
	h.svc.Handle(context.Background(), Event{Kind: EventMedia, From: user(from), ChatID: from, MediaKind: kind, FileID: fileID})
}

func (h *harness) callback(from int64, messageID int, data string) {
	h.svc.Handle(context.Background(), Event{Kind: EventCallback, From: user(from), ChatID: from, MessageID: messageID, CallbackID: "cb", Data: data})
}

// uploadFile runs the whole upload conversation and returns the issued code.
func (h *harness) uploadFile(t *testing.T, from int64, desc string, kind model.Kind, fileID string) string {
	t.Helper()
	h.command(from, "upload", "")
	h.text(from, desc)
	h.media(from, kind, fileID)
	last := h.transport.last(from)
	require.NotNil(t, last)
	require.True(t, strings.HasPrefix(last.text, "✅ File uploaded successfully!"), last.text)
	for _, line := range strings.Split(last.text, "\n") {
		if code, ok := strings.CutPrefix(line, "🔑 Access Code: "); ok {
			require.True(t, codes.Valid(code))
			return code
		}
	}
	t.Fatal("no code in reply")
	return ""
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestStartRecordsUser(t *testing.T) {
	h := newHarness(t)
	h.command(visitor, "start", "")

	_, ok := h.store.Users().Get(visitor)
	assert.True(t, ok)
	last := h.transport.last(visitor)
	assert.Equal(t, textWelcome, last.text)
	require.Len(t, last.rows, 2)
	assert.Equal(t, "https://t.me/backup", last.rows[0][0].URL)
	assert.Equal(t, callbackEnterCode, last.rows[1][0].Data)
}

func TestHelpDependsOnRole(t *testing.T) {
	h := newHarness(t)
	h.command(ownerID, "help", "")
	assert.Equal(t, textOwnerHelp, h.transport.last(ownerID).text)
	h.command(visitor, "help", "")
	assert.Equal(t, textUserHelp, h.transport.last(visitor).text)
}

func TestUploadRequiresGrant(t *testing.T) {
	h := newHarness(t)
	h.command(uploader, "upload", "")
	assert.Equal(t, textNotUploader, h.transport.last(uploader).text)

	h.command(ownerID, "authorize", "2")
	assert.Equal(t, fmt.Sprintf(textGranted, uploader), h.transport.last(ownerID).text)
	h.command(ownerID, "grant", "2")
	assert.Equal(t, fmt.Sprintf(textAlreadyGranted, uploader), h.transport.last(ownerID).text)

	h.uploadFile(t, uploader, "Quarterly report", model.KindDocument, "BQACAgQ")

	h.command(ownerID, "revoke", "2")
	assert.Equal(t, fmt.Sprintf(textRevoked, uploader), h.transport.last(ownerID).text)
	h.command(uploader, "upload", "")
	assert.Equal(t, textNotUploader, h.transport.last(uploader).text)
}

func TestOwnerCommandsRefuseOthers(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{"authorize", "revoke", "list_files", "broadcast", "check_users", "stats", "backup"} {
		h.command(visitor, cmd, "5")
		assert.Equal(t, textOwnerOnly, h.transport.last(visitor).text, cmd)
	}
	n, _ := h.store.Uploaders().Count(context.Background())
	assert.Zero(t, n)
}

func TestAuthorizeUsage(t *testing.T) {
	h := newHarness(t)
	for _, args := range []string{"", "abc", "-4", "0"} {
		h.command(ownerID, "authorize", args)
		assert.Equal(t, textUsageAuthorize, h.transport.last(ownerID).text, args)
	}
}

func TestDescriptionLimitInConversation(t *testing.T) {
	h := newHarness(t)
	h.command(ownerID, "upload", "")
	h.text(ownerID, strings.Repeat("a", 51))
	assert.Equal(t, textDescTooLong, h.transport.last(ownerID).text)
	h.text(ownerID, strings.Repeat("a", 50))
	assert.Equal(t, textAskFile, h.transport.last(ownerID).text)
	h.text(ownerID, "where do I send it?")
	assert.Equal(t, textWaitingFile, h.transport.last(ownerID).text)
}

func TestMediaWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.media(ownerID, model.KindVideo, "x")
	assert.Equal(t, textUploadFirst, h.transport.last(ownerID).text)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.command(ownerID, "cancel", "")
	assert.Equal(t, textNothingCancel, h.transport.last(ownerID).text)
	h.command(ownerID, "upload", "")
	h.command(ownerID, "cancel", "")
	assert.Equal(t, textCancelled, h.transport.last(ownerID).text)
	h.media(ownerID, model.KindVideo, "x")
	assert.Equal(t, textUploadFirst, h.transport.last(ownerID).text)
}

func TestNonMemberGetsJoinPromptWithoutLookup(t *testing.T) {
	h := newHarness(t)
	code := h.uploadFile(t, ownerID, "Demo", model.KindVideo, "BAACAgQ")
	reads := h.store.ArtifactReads

	h.text(visitor, code)
	last := h.transport.last(visitor)
	assert.Equal(t, textMustJoin, last.text)
	require.Len(t, last.rows, 2)
	assert.Equal(t, h.signer.JoinCallback(code, visitor), last.rows[1][0].Data)
	assert.Equal(t, reads, h.store.ArtifactReads)
	assert.Empty(t, h.store.Obligations().All())
}

func TestJoinCallbackDelivers(t *testing.T) {
	h := newHarness(t)
	code := h.uploadFile(t, ownerID, "Demo", model.KindVideo, "BAACAgQ")
	h.text(visitor, code)
	prompt := h.transport.last(visitor)

	h.callback(visitor, prompt.id, prompt.rows[1][0].Data)
	assert.Equal(t, textNotJoinedYet, prompt.text)
	assert.True(t, prompt.edited)

	h.dir.join(visitor)
	h.callback(visitor, prompt.id, prompt.rows[1][0].Data)
	assert.Equal(t, textJoinVerified, prompt.text)

	visible := h.transport.visible(visitor)
	require.Len(t, visible, 3)
	assert.Equal(t, delivery.WarningText, visible[1].text)
	assert.Equal(t, "BAACAgQ", visible[2].fileID)
	assert.Len(t, h.store.Obligations().All(), 1)
}

func TestForgedCallbackIsRejected(t *testing.T) {
	h := newHarness(t)
	h.dir.join(visitor)
	code := h.uploadFile(t, ownerID, "Demo", model.KindVideo, "BAACAgQ")

	h.callback(visitor, 0, h.signer.JoinCallback(code, 99))
	assert.Equal(t, []string{textButtonExpired}, h.transport.answers)
	assert.Empty(t, h.store.Obligations().All())
}

func TestEnterCodeCallback(t *testing.T) {
	h := newHarness(t)
	h.callback(visitor, 0, callbackEnterCode)
	assert.Equal(t, textPromptCode, h.transport.last(visitor).text)
}

func TestTextRouting(t *testing.T) {
	h := newHarness(t)
	h.dir.join(visitor)

	h.text(visitor, "hello there")
	assert.Equal(t, textNotACode, h.transport.last(visitor).text)
	h.text(visitor, "abcd1234")
	assert.Equal(t, textNotACode, h.transport.last(visitor).text)
	h.text(visitor, "ZZZZ9999")
	assert.Equal(t, textInvalidCode, h.transport.last(visitor).text)
	assert.Empty(t, h.store.Obligations().All())
}

func TestCodeDeliveredWhileAwaitingFile(t *testing.T) {
	h := newHarness(t)
	h.dir.join(ownerID)
	code := h.uploadFile(t, ownerID, "Launch trailer", model.KindVideo, "BAACAgQ")

	h.command(ownerID, "upload", "")
	h.text(ownerID, "Second reel")
	h.text(ownerID, code)

	last := h.transport.last(ownerID)
	assert.Equal(t, model.KindVideo, last.kind)
	assert.Equal(t, "BAACAgQ", last.fileID)
	assert.Len(t, h.store.Obligations().All(), 1)
	assert.Equal(t, upload.AwaitingArtifact, h.svc.sessions.State(ownerID))

	h.media(ownerID, model.KindDocument, "second")
	assert.True(t, strings.HasPrefix(h.transport.last(ownerID).text, "✅ File uploaded successfully!"))
}

func TestCodeShapedDescriptionIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.dir.join(ownerID)
	code := h.uploadFile(t, ownerID, "Launch trailer", model.KindVideo, "BAACAgQ")

	h.command(ownerID, "upload", "")
	h.text(ownerID, code)

	assert.Equal(t, textAskFile, h.transport.last(ownerID).text)
	assert.Equal(t, upload.AwaitingArtifact, h.svc.sessions.State(ownerID))
	assert.Empty(t, h.store.Obligations().All())
}

func TestStartDeepLinkDelivers(t *testing.T) {
	h := newHarness(t)
	h.dir.join(visitor)
	code := h.uploadFile(t, ownerID, "Demo", model.KindAudio, "CQACAgQ")

	h.command(visitor, "start", code)
	last := h.transport.last(visitor)
	assert.Equal(t, model.KindAudio, last.kind)
}

func TestEndToEndExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.dir.join(visitor)
	code := h.uploadFile(t, ownerID, "Launch trailer", model.KindVideo, "BAACAgQ")

	h.text(visitor, code)
	require.Len(t, h.transport.visible(visitor), 2)

	h.clock = h.clock.Add(899 * time.Second)
	_, err := h.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, h.transport.visible(visitor), 2)

	h.clock = h.clock.Add(time.Second)
	n, err := h.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.transport.visible(visitor))
}

func TestListFiles(t *testing.T) {
	h := newHarness(t)
	h.command(ownerID, "list_files", "")
	assert.Equal(t, textNoFiles, h.transport.last(ownerID).text)

	code := h.uploadFile(t, ownerID, "Manual", model.KindDocument, "doc")
	h.command(ownerID, "list_files", "")
	text := h.transport.last(ownerID).text
	assert.Contains(t, text, fmt.Sprintf(textFilesHeader, 1, 1))
	assert.Contains(t, text, code)
	assert.Contains(t, text, "Manual")
}

func TestBroadcast(t *testing.T) {
	h := newHarness(t)
	for _, id := range []int64{10, 20, 30} {
		h.command(id, "start", "")
	}
	h.transport.failSend[20] = true

	h.command(ownerID, "broadcast", "")
	assert.Equal(t, textUsageBroadcast, h.transport.last(ownerID).text)

	h.command(ownerID, "broadcast", "New files tonight")
	var status *outbound
	for _, o := range h.transport.visible(ownerID) {
		if o.edited {
			status = o
		}
	}
	require.NotNil(t, status)
	// owner plus the three visitors; 20 fails
	assert.Equal(t, fmt.Sprintf(textBroadcastDone, 3, 1), status.text)
	assert.Equal(t, textBroadcastHead+"New files tonight", h.transport.last(30).text)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.dir.join(visitor)
	h.command(ownerID, "authorize", "2")
	code := h.uploadFile(t, ownerID, "Demo", model.KindVideo, "v")
	h.text(visitor, code)

	h.command(ownerID, "check_users", "")
	assert.Equal(t, fmt.Sprintf(textStats, 2, 1, 1, 1), h.transport.last(ownerID).text)
}

func TestBackup(t *testing.T) {
	h := newHarness(t)
	h.uploadFile(t, ownerID, "Demo", model.KindVideo, "v")

	h.command(ownerID, "backup", "")
	require.Len(t, h.backup.snaps, 1)
	assert.Len(t, h.backup.snaps[0].Artifacts, 1)
	assert.Equal(t, 1, h.backup.snaps[0].Users)
	assert.Contains(t, h.transport.last(ownerID).text, "https://s3.local/catalog/1.json")
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()

	h.transport.updates <- Event{Kind: EventCommand, From: user(visitor), ChatID: visitor, Command: "start"}
	assert.Eventually(t, func() bool {
		return h.transport.last(visitor) != nil
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	_, ok := h.store.Users().Get(visitor)
	assert.True(t, ok)
}
