package download

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/cache"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type memUsers struct {
	users map[int64]domain.User
	err   error
}

func (m *memUsers) GetUser(_ context.Context, id int64) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) SaveUser(_ context.Context, u domain.User) error {
	m.users[u.ID] = u
	return nil
}

type memAuths struct {
	auths []domain.UserAuth
}

func (m *memAuths) ListUserAuthsForSite(_ context.Context, userID int64, site string) ([]domain.UserAuth, error) {
	var out []domain.UserAuth
	for _, a := range m.auths {
		if a.UserID == userID && a.Site == site {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAuths) GetUserAuth(_ context.Context, userID, id int64) (domain.UserAuth, error) {
	for _, a := range m.auths {
		if a.UserID == userID && a.ID == id {
			return a, nil
		}
	}
	return domain.UserAuth{}, domain.ErrNotFound
}

func (m *memAuths) SaveUserAuth(_ context.Context, a domain.UserAuth) (domain.UserAuth, error) {
	a.ID = int64(len(m.auths) + 1)
	m.auths = append(m.auths, a)
	return a, nil
}

func (m *memAuths) DeleteUserAuth(_ context.Context, userID, id int64) error {
	for i, a := range m.auths {
		if a.UserID == userID && a.ID == id {
			m.auths = append(m.auths[:i], m.auths[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memSites struct {
	cfgs map[string]domain.SiteConfig
}

func (m *memSites) GetSiteConfig(_ context.Context, userID int64, site string) (*domain.SiteConfig, error) {
	cfg, ok := m.cfgs[site]
	if !ok || cfg.UserID != userID {
		return nil, nil
	}
	return &cfg, nil
}

func (m *memSites) SaveSiteConfig(_ context.Context, cfg domain.SiteConfig) error {
	m.cfgs[cfg.Site] = cfg
	return nil
}

func (m *memSites) DeleteSiteConfig(_ context.Context, _ int64, site string) error {
	delete(m.cfgs, site)
	return nil
}

type memRequests struct {
	mu      sync.Mutex
	rows    map[int64]domain.InlineDownloadRequest
	next    int64
	saveErr error
	now     time.Time
}

func newMemRequests() *memRequests {
	return &memRequests{rows: map[int64]domain.InlineDownloadRequest{}, now: testNow}
}

func (m *memRequests) Save(_ context.Context, r *domain.InlineDownloadRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if r.ID == 0 {
		m.next++
		r.ID = m.next
	}
	m.rows[r.ID] = *r
	return nil
}

func (m *memRequests) GetByIdentity(_ context.Context, id domain.RequestIdentity) (domain.InlineDownloadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []domain.InlineDownloadRequest
	for _, r := range m.rows {
		if r.Identity() == id {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return domain.InlineDownloadRequest{}, domain.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID > found[j].ID })
	return found[0], nil
}

func (m *memRequests) Delete(_ context.Context, id domain.RequestIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.Identity() == id {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memRequests) ListAbandoned(_ context.Context, olderThan time.Duration) ([]domain.InlineDownloadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InlineDownloadRequest
	for _, r := range m.rows {
		if r.IsAbandoned(m.now, olderThan) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequests) count(id domain.RequestIdentity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Identity() == id {
			n++
		}
	}
	return n
}

type memUsage struct {
	acl     *domain.ACL
	used    int
	seen    map[domain.TaskID]bool
	success int
	failure int
	orig    int64
	oper    int64
}

func newMemUsage() *memUsage {
	return &memUsage{seen: map[domain.TaskID]bool{}}
}

func (m *memUsage) GetACL(context.Context, int64) (*domain.ACL, error) { return m.acl, nil }

func (m *memUsage) DailyUsage(context.Context, int64, time.Time) (int, error) {
	return m.used + m.success, nil
}

func (m *memUsage) RecordResult(_ context.Context, res domain.DownloadResult, _ time.Time) (bool, error) {
	if res.Status != domain.StatusDone && res.Status != domain.StatusError {
		return false, nil
	}
	if m.seen[res.TaskID] {
		return false, nil
	}
	m.seen[res.TaskID] = true
	if res.Status == domain.StatusDone {
		m.success++
		m.orig += res.OrigSize
		m.oper += res.OperSize
	} else {
		m.failure++
	}
	return true, nil
}

type fakeQueue struct {
	sites     map[string]domain.SiteData
	taskID    domain.TaskID
	initErr   error
	inits     []domain.DownloadRequest
	cancelRes domain.CancelResult
	cancels   []domain.TaskID
	cancelErr error
	cleared   []domain.TaskID
}

func (q *fakeQueue) GetSiteData(_ context.Context, site string) (domain.SiteData, bool) {
	sd, ok := q.sites[site]
	return sd, ok
}

func (q *fakeQueue) IsLinkAllowed(context.Context, string, string) bool { return true }

func (q *fakeQueue) InitDownload(_ context.Context, req domain.DownloadRequest) (domain.TaskID, error) {
	q.inits = append(q.inits, req)
	if q.initErr != nil {
		return "", q.initErr
	}
	return q.taskID, nil
}

func (q *fakeQueue) CancelDownload(_ context.Context, id domain.TaskID) (domain.CancelResult, error) {
	q.cancels = append(q.cancels, id)
	return q.cancelRes, q.cancelErr
}

func (q *fakeQueue) ClearDownloadFiles(_ context.Context, id domain.TaskID) {
	q.cleared = append(q.cleared, id)
}

type sentMessage struct {
	ChatID int64
	ID     int
	Text   string
	KB     domain.Keyboard
}

type fakeMessenger struct {
	next    int
	sent    []sentMessage
	edits   []sentMessage
	deleted []int
	photos  []string
	docs    [][]string
	editErr error
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string, kb domain.Keyboard) (int, error) {
	m.next++
	m.sent = append(m.sent, sentMessage{ChatID: chatID, ID: 100 + m.next, Text: text, KB: kb})
	return 100 + m.next, nil
}

func (m *fakeMessenger) Edit(_ context.Context, chatID int64, msgID int, text string, kb domain.Keyboard) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, sentMessage{ChatID: chatID, ID: msgID, Text: text, KB: kb})
	return nil
}

func (m *fakeMessenger) Delete(_ context.Context, _ int64, msgID int) error {
	m.deleted = append(m.deleted, msgID)
	return nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, _ int64, path, caption string) error {
	m.photos = append(m.photos, path+"|"+caption)
	return nil
}

func (m *fakeMessenger) SendDocuments(_ context.Context, _ int64, paths []string) error {
	m.docs = append(m.docs, paths)
	return nil
}

func (m *fakeMessenger) AnswerCallback(context.Context, string, string) error { return nil }

func (m *fakeMessenger) lastEdit(t *testing.T) sentMessage {
	t.Helper()
	if len(m.edits) == 0 {
		t.Fatal("ожидали редактирование сообщения")
	}
	return m.edits[len(m.edits)-1]
}

func (m *fakeMessenger) lastSent(t *testing.T) sentMessage {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatal("ожидали отправку сообщения")
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) wasDeleted(id int) bool {
	for _, d := range m.deleted {
		if d == id {
			return true
		}
	}
	return false
}

type memStates struct {
	states map[[2]int64]domain.ChatState
}

func (m *memStates) Get(_ context.Context, chatID, userID int64) (domain.ChatState, error) {
	return m.states[[2]int64{chatID, userID}], nil
}

func (m *memStates) Set(_ context.Context, chatID, userID int64, st domain.ChatState) error {
	m.states[[2]int64{chatID, userID}] = st
	return nil
}

func (m *memStates) Clear(_ context.Context, chatID, userID int64) error {
	delete(m.states, [2]int64{chatID, userID})
	return nil
}

type testCatalog struct{}

func (testCatalog) FormatCodes() []string { return []string{"epub", "fb2"} }

func (testCatalog) FormatName(code string) string { return strings.ToUpper(code) }

func (testCatalog) IsDemo(site string) bool { return site == "demo.example" }

type env struct {
	deps     *Deps
	users    *memUsers
	auths    *memAuths
	sites    *memSites
	requests *memRequests
	usage    *memUsage
	queue    *fakeQueue
	msgr     *fakeMessenger
	states   *memStates
}

const (
	testChat = int64(500)
	testUser = int64(7)
	testSite = "author.today"
	testLink = "https://author.today/work/123"
)

func newEnv() *env {
	e := &env{
		users:    &memUsers{users: map[int64]domain.User{testUser: domain.NewUser(testUser, "reader")}},
		auths:    &memAuths{},
		sites:    &memSites{cfgs: map[string]domain.SiteConfig{}},
		requests: newMemRequests(),
		usage:    newMemUsage(),
		queue: &fakeQueue{
			taskID: "42",
			sites: map[string]domain.SiteData{
				testSite: {
					Allowed:    true,
					Parameters: []string{domain.ParamPaging, domain.ParamAuth, domain.ParamImages, domain.ParamCover},
					Formats:    map[string][]string{"fb2": nil, "epub": nil},
				},
			},
		},
		msgr:   &fakeMessenger{},
		states: &memStates{states: map[[2]int64]domain.ChatState{}},
	}
	e.deps = &Deps{
		Users:     e.users,
		Auths:     e.auths,
		Sites:     e.sites,
		Requests:  e.requests,
		Usage:     e.usage,
		Queue:     e.queue,
		Messenger: e.msgr,
		States:    e.states,
		Cache:     cache.NewMemory(64),
		Catalog:   testCatalog{},
		FreeLimit: 100,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return testNow },
	}
	return e
}

// startInline открывает сообщение настройки и возвращает его идентификатор.
func (e *env) startInline(t *testing.T) domain.RequestIdentity {
	t.Helper()
	if err := NewInline(e.deps).Start(context.Background(), testChat, testUser, testLink, testSite); err != nil {
		t.Fatalf("неожиданная ошибка Start: %v", err)
	}
	return domain.RequestIdentity{UserID: testUser, ChatID: testChat, MessageID: e.msgr.lastSent(t).ID}
}

func hasButton(kb domain.Keyboard, data string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

var errRemote = errors.New("Ссылка не поддерживается")
