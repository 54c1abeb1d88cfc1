package bot

import "sync"

type lockKey struct {
	chatID int64
	userID int64
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex сериализует обработку по паре (чат, пользователь).
// Записи удаляются, когда их никто не держит.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[lockKey]*lockEntry)}
}

// Lock захватывает блокировку и возвращает функцию освобождения.
func (k *keyedMutex) Lock(chatID, userID int64) func() {
	key := lockKey{chatID: chatID, userID: userID}
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
