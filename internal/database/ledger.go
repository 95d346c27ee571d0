package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"temp_chat/internal/hub"
)

// Ledger keeps an audit trail of who was in a chat and when. It implements
// hub.Observer. Writes are handed to a single worker so the hub never waits
// on the database; ChatClosed drains the queue before it returns.
type Ledger struct {
	db       *gorm.DB
	log      *slog.Logger
	chatID   string
	recordID uint
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	jobs   chan func()
	done   chan struct{}
}

var _ hub.Observer = (*Ledger)(nil)

const ledgerQueueSize = 256

// StartChat records a new chat and returns the ledger for it.
func StartChat(ctx context.Context, db *gorm.DB, log *slog.Logger, chatID, hostUsername string, userLimit int) (*Ledger, error) {
	l := &Ledger{
		db:     db,
		log:    log,
		chatID: chatID,
		now:    time.Now,
		jobs:   make(chan func(), ledgerQueueSize),
		done:   make(chan struct{}),
	}
	chat := ChatRecord{
		ChatID:       chatID,
		HostUsername: hostUsername,
		UserLimit:    userLimit,
		CreatedAt:    l.now(),
	}
	if err := Create(ctx, db, &chat); err != nil {
		return nil, fmt.Errorf("record chat %s: %w", chatID, err)
	}
	l.recordID = chat.ID
	go l.work()
	return l, nil
}

func (l *Ledger) ChatID() string { return l.chatID }

func (l *Ledger) work() {
	defer close(l.done)
	for job := range l.jobs {
		job()
	}
}

// enqueue never blocks; a full queue drops the write with a warning.
func (l *Ledger) enqueue(op string, job func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.log.Warn("ledger closed, write dropped", "chat_id", l.chatID, "op", op)
		return
	}
	select {
	case l.jobs <- job:
	default:
		l.log.Warn("ledger queue full, write dropped", "chat_id", l.chatID, "op", op)
	}
}

// Sync waits until every write queued so far has been applied.
func (l *Ledger) Sync() {
	barrier := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.jobs <- func() { close(barrier) }
	l.mu.Unlock()
	<-barrier
}

func (l *Ledger) MemberJoined(ctx context.Context, member hub.SessionView) {
	record := MemberRecord{
		ChatID:     l.chatID,
		ConnID:     member.ID,
		Username:   member.Username,
		Thumbprint: member.Thumbprint,
		JoinedAt:   l.now(),
	}
	ctx = context.WithoutCancel(ctx)
	l.enqueue("member_joined", func() {
		if err := Create(ctx, l.db, &record); err != nil {
			l.log.Error("failed to record member join", "chat_id", l.chatID, "conn_id", member.ID, "error", err)
		}
	})
}

func (l *Ledger) MemberLeft(ctx context.Context, member hub.SessionView) {
	leftAt := l.now()
	ctx = context.WithoutCancel(ctx)
	l.enqueue("member_left", func() {
		_, err := gorm.G[MemberRecord](l.db).
			Where("chat_id = ? AND conn_id = ? AND left_at IS NULL", l.chatID, member.ID).
			Update(ctx, "left_at", leftAt)
		if err != nil {
			l.log.Error("failed to record member exit", "chat_id", l.chatID, "conn_id", member.ID, "error", err)
		}
	})
}

// ChatClosed stamps the chat and every membership still open, then stops the
// worker once the queue is drained. Later writes are dropped.
func (l *Ledger) ChatClosed(ctx context.Context) {
	closedAt := l.now()
	ctx = context.WithoutCancel(ctx)
	l.enqueue("chat_closed", func() {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := gorm.G[MemberRecord](tx).
				Where("chat_id = ? AND left_at IS NULL", l.chatID).
				Update(ctx, "left_at", closedAt); err != nil {
				return err
			}
			_, err := gorm.G[ChatRecord](tx).
				Where("chat_id = ?", l.chatID).
				Update(ctx, "closed_at", closedAt)
			return err
		})
		if err != nil {
			l.log.Error("failed to record chat close", "chat_id", l.chatID, "error", err)
		}
	})
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.jobs)
	}
	l.mu.Unlock()
	<-l.done
}

// Chat returns the chat row.
func (l *Ledger) Chat(ctx context.Context) (*ChatRecord, error) {
	return FindByID[ChatRecord](ctx, l.db, l.recordID)
}

// Members returns every membership of the chat in join order.
func (l *Ledger) Members(ctx context.Context) ([]MemberRecord, error) {
	return gorm.G[MemberRecord](l.db).Where("chat_id = ?", l.chatID).Order("id").Find(ctx)
}

// ActiveMembers returns the memberships that have not ended.
func (l *Ledger) ActiveMembers(ctx context.Context) ([]MemberRecord, error) {
	return FindWhere[MemberRecord](ctx, l.db, "chat_id = ? AND left_at IS NULL", l.chatID)
}
