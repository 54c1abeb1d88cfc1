package download

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tg-download-bot/internal/domain"
)

func TestOnStatusEditsWithCancelButton(t *testing.T) {
	e := newEnv()
	n := NewNotifier(e.deps)
	err := n.OnStatus(context.Background(), domain.DownloadStatus{TaskID: "42", ChatID: testChat, MessageID: 77, Text: "Скачано 3 из 10", Status: domain.StatusRunning})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	edit := e.msgr.lastEdit(t)
	if edit.ID != 77 || edit.Text != "Скачано 3 из 10" || !hasButton(edit.KB, "cancel_task:42") {
		t.Fatalf("неожиданное редактирование: %+v", edit)
	}
}

func TestOnStatusGoneMessageIsSuccess(t *testing.T) {
	e := newEnv()
	n := NewNotifier(e.deps)
	for _, cause := range []error{domain.ErrMessageGone, domain.ErrMessageNotModified} {
		e.msgr.editErr = cause
		if err := n.OnStatus(context.Background(), domain.DownloadStatus{TaskID: "1", ChatID: testChat, MessageID: 5, Status: domain.StatusWait}); err != nil {
			t.Fatalf("%v: ожидали успех, получили %v", cause, err)
		}
	}
}

func TestOnResultAccounting(t *testing.T) {
	e := newEnv()
	n := NewNotifier(e.deps)
	ctx := context.Background()
	done := domain.DownloadResult{TaskID: "1", UserID: testUser, ChatID: testChat, MessageID: 70, Site: testSite, Status: domain.StatusDone, Files: []string{"/tmp/a.fb2"}, OrigSize: 100, OperSize: 80}
	failed := domain.DownloadResult{TaskID: "2", UserID: testUser, ChatID: testChat, MessageID: 71, Site: testSite, Status: domain.StatusError, Text: "Книга недоступна"}

	for _, res := range []domain.DownloadResult{done, failed, done, failed} {
		if err := n.OnResult(ctx, res); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	u := e.usage
	if u.success != 1 || u.failure != 1 || u.orig != 100 || u.oper != 80 {
		t.Fatalf("ожидали 1/1/100/80, получили %d/%d/%d/%d", u.success, u.failure, u.orig, u.oper)
	}
	if len(e.msgr.docs) != 1 {
		t.Fatalf("файлы должны отправляться один раз, получили %d", len(e.msgr.docs))
	}
	if edit := e.msgr.lastEdit(t); edit.ID != 71 || edit.Text != "Книга недоступна" {
		t.Fatalf("ожидали текст ошибки в статусе, получили %+v", edit)
	}
	if len(e.queue.cleared) != 2 {
		t.Fatalf("ожидали очистку файлов двух задач, получили %v", e.queue.cleared)
	}
}

func TestOnResultCancelledSkipsAccounting(t *testing.T) {
	e := newEnv()
	err := NewNotifier(e.deps).OnResult(context.Background(), domain.DownloadResult{TaskID: "9", UserID: testUser, ChatID: testChat, MessageID: 55, Status: domain.StatusCancelled})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if e.usage.success != 0 || e.usage.failure != 0 {
		t.Fatal("отменённая задача не учитывается")
	}
	if !e.msgr.wasDeleted(55) {
		t.Fatal("ожидали удаление статусного сообщения")
	}
}

func TestResultCaption(t *testing.T) {
	got := resultCaption(domain.DownloadResult{Text: "Книга", OrigSize: 2048, OperSize: 1024})
	if !strings.Contains(got, "Книга") || !strings.Contains(got, "2.0 KiB → 1.0 KiB") {
		t.Fatalf("неожиданная подпись: %q", got)
	}
	if resultCaption(domain.DownloadResult{}) != "Готово" {
		t.Fatal("ожидали подпись по умолчанию")
	}
}

func TestNotifierCancel(t *testing.T) {
	e := newEnv()
	e.queue.cancelRes = domain.CancelResult{UserID: testUser, ChatID: testChat, MessageID: 77}
	n := NewNotifier(e.deps)
	ok, err := n.Cancel(context.Background(), "42", CancelBy{ChatID: testChat, UserID: testUser})
	if err != nil || !ok {
		t.Fatalf("ожидали отмену, получили %v, %v", ok, err)
	}
	if !e.msgr.wasDeleted(77) {
		t.Fatal("ожидали удаление сообщения 77")
	}

	e.queue.cancelErr = errRemote
	ok, err = n.Cancel(context.Background(), "43", CancelBy{ChatID: testChat, UserID: testUser})
	if err != nil || ok {
		t.Fatalf("отказ сервиса не должен считаться отменой: %v, %v", ok, err)
	}
	sent := e.msgr.lastSent(t)
	if sent.ChatID != testChat || sent.Text != errRemote.Error() {
		t.Fatalf("ожидали текст ошибки в чате отмены, получили %+v", sent)
	}
}

func TestNotifierCancelChecksOwner(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	id := e.startInline(t)
	if err := NewInline(e.deps).Callback(ctx, testChat, testUser, id.MessageID, Callback{Action: ActionDownload}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	e.queue.cancelRes = domain.CancelResult{UserID: testUser, ChatID: testChat, MessageID: id.MessageID}
	n := NewNotifier(e.deps)

	ok, err := n.Cancel(ctx, "42", CancelBy{ChatID: testChat, UserID: 8})
	if !errors.Is(err, ErrNotTaskOwner) || ok {
		t.Fatalf("ожидали ErrNotTaskOwner, получили %v, %v", ok, err)
	}
	if len(e.queue.cancels) != 0 || e.msgr.wasDeleted(id.MessageID) {
		t.Fatal("чужая задача не должна отменяться")
	}

	ok, err = n.Cancel(ctx, "42", CancelBy{ChatID: 1, UserID: 1, Admin: true})
	if err != nil || !ok {
		t.Fatalf("администратор должен отменять любую задачу: %v, %v", ok, err)
	}
	if !e.msgr.wasDeleted(id.MessageID) {
		t.Fatal("ожидали удаление статусного сообщения")
	}
}

func TestNotifierCancelUnknownOwner(t *testing.T) {
	e := newEnv()
	e.queue.cancelRes = domain.CancelResult{UserID: testUser, ChatID: testChat, MessageID: 77}
	ok, err := NewNotifier(e.deps).Cancel(context.Background(), "99", CancelBy{ChatID: testChat, UserID: 8})
	if !errors.Is(err, ErrNotTaskOwner) || ok {
		t.Fatalf("ожидали ErrNotTaskOwner, получили %v, %v", ok, err)
	}
	if e.msgr.wasDeleted(77) {
		t.Fatal("сообщение владельца не должно удаляться")
	}
}

// Полный сценарий: ссылка, настройка, постановка, статус, результат.
func TestDownloadHappyPath(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	id := e.startInline(t)
	if err := NewInline(e.deps).Callback(ctx, testChat, testUser, id.MessageID, Callback{Action: ActionDownload}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if e.msgr.lastEdit(t).Text != "Задача #42 поставлена в очередь" {
		t.Fatalf("неожиданный статус: %q", e.msgr.lastEdit(t).Text)
	}

	n := NewNotifier(e.deps)
	if err := n.OnStatus(ctx, domain.DownloadStatus{TaskID: "42", UserID: testUser, ChatID: testChat, MessageID: id.MessageID, Text: "Загрузка", Status: domain.StatusRunning}); err != nil {
		t.Fatalf("неожиданная ошибка статуса: %v", err)
	}
	res := domain.DownloadResult{
		TaskID: "42", UserID: testUser, ChatID: testChat, MessageID: id.MessageID, Site: testSite,
		Status: domain.StatusDone, Text: "Готово", Cover: "/tmp/cover.jpg", Files: []string{"/tmp/book.fb2"},
		OrigSize: 500, OperSize: 300,
	}
	if err := n.OnResult(ctx, res); err != nil {
		t.Fatalf("неожиданная ошибка результата: %v", err)
	}
	if e.usage.success != 1 || e.usage.orig != 500 || e.usage.oper != 300 {
		t.Fatalf("ожидали 1/500/300, получили %d/%d/%d", e.usage.success, e.usage.orig, e.usage.oper)
	}
	if len(e.msgr.photos) != 1 || len(e.msgr.docs) != 1 || e.msgr.docs[0][0] != "/tmp/book.fb2" {
		t.Fatalf("ожидали обложку и файл, получили %v %v", e.msgr.photos, e.msgr.docs)
	}
	if !e.msgr.wasDeleted(id.MessageID) {
		t.Fatal("статусное сообщение должно удаляться после доставки")
	}
	if len(e.queue.cleared) != 1 || e.queue.cleared[0] != "42" {
		t.Fatalf("ожидали очистку файлов задачи 42, получили %v", e.queue.cleared)
	}
}

func TestSweeperRemovesAbandoned(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	old := domain.InlineDownloadRequest{UserID: testUser, ChatID: testChat, MessageID: 10, Site: testSite, Created: testNow.Add(-25 * time.Hour)}
	fresh := domain.InlineDownloadRequest{UserID: testUser, ChatID: testChat, MessageID: 11, Site: testSite, Created: testNow.Add(-time.Hour)}
	_ = e.requests.Save(ctx, &old)
	_ = e.requests.Save(ctx, &fresh)

	removed, err := NewSweeper(e.deps, 24*time.Hour).Sweep(ctx)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if removed != 1 {
		t.Fatalf("ожидали удаление одного запроса, получили %d", removed)
	}
	if e.requests.count(old.Identity()) != 0 || e.requests.count(fresh.Identity()) != 1 {
		t.Fatal("удалён не тот запрос")
	}
	if edit := e.msgr.lastEdit(t); edit.ID != 10 || edit.Text != ErrRequestExpired.Error() {
		t.Fatalf("ожидали уведомление об устаревшем запросе, получили %+v", edit)
	}
}

func TestSweeperIgnoresGoneMessage(t *testing.T) {
	e := newEnv()
	e.msgr.editErr = domain.ErrMessageGone
	row := domain.InlineDownloadRequest{UserID: testUser, ChatID: testChat, MessageID: 10, Created: testNow.Add(-48 * time.Hour)}
	_ = e.requests.Save(context.Background(), &row)
	removed, err := NewSweeper(e.deps, 24*time.Hour).Sweep(context.Background())
	if err != nil || removed != 1 {
		t.Fatalf("ожидали удаление без ошибки, получили %d, %v", removed, err)
	}
}
