package database

import "sync"

// ChangeEvent 账号变更通知
// 只携带定位信息，订阅方自行回查最新记录再对账
type ChangeEvent struct {
	AccountID string `json:"accountId"`
	OwnerID   string `json:"ownerId"`
	// Kind: created / updated / deleted / refreshed
	Kind string `json:"kind"`
}

// changeFeed 账号变更广播，供 SSE 推送订阅
// 与日志广播同一套路：慢订阅者直接丢消息，绝不阻塞写路径
type changeFeed struct {
	mu          sync.RWMutex
	subscribers map[chan ChangeEvent]struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subscribers: make(map[chan ChangeEvent]struct{})}
}

func (f *changeFeed) subscribe() chan ChangeEvent {
	ch := make(chan ChangeEvent, 64)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *changeFeed) unsubscribe(ch chan ChangeEvent) {
	f.mu.Lock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()
}

func (f *changeFeed) notify(ev ChangeEvent) {
	f.mu.RLock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// channel 满了就跳过，避免阻塞
		}
	}
	f.mu.RUnlock()
}

func (f *changeFeed) closeAll() {
	f.mu.Lock()
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()
}

// SubscribeChanges 订阅账号变更流
func (db *DB) SubscribeChanges() chan ChangeEvent {
	return db.changeFeed.subscribe()
}

// UnsubscribeChanges 取消订阅
func (db *DB) UnsubscribeChanges(ch chan ChangeEvent) {
	db.changeFeed.unsubscribe(ch)
}

// NotifyChange 广播一条账号变更（写路径在落库成功后调用）
func (db *DB) NotifyChange(ev ChangeEvent) {
	db.changeFeed.notify(ev)
}
