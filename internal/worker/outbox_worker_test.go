package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
)

type memOutboxRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]domain.OutboxMessage
	loadErr  error // returned once by GetByID, then cleared
}

var _ repository.OutboxRepository = (*memOutboxRepo)(nil)

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{messages: make(map[int64]domain.OutboxMessage)}
}

func (m *memOutboxRepo) Enqueue(ctx context.Context, msg *domain.OutboxMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if existing.Status == domain.OutboxStatusPending &&
			existing.To == msg.To && existing.Subject == msg.Subject && existing.Body == msg.Body {
			return false, nil
		}
	}
	m.nextID++
	msg.ID = m.nextID
	msg.Status = domain.OutboxStatusPending
	m.messages[msg.ID] = *msg
	return true, nil
}

func (m *memOutboxRepo) Claim(ctx context.Context, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var won []int64
	for id := int64(1); id <= m.nextID && len(won) < limit; id++ {
		msg, ok := m.messages[id]
		if ok && msg.Status == domain.OutboxStatusPending {
			msg.Status = domain.OutboxStatusClaimed
			m.messages[id] = msg
			won = append(won, id)
		}
	}
	return won, nil
}

func (m *memOutboxRepo) GetByID(ctx context.Context, id int64) (*domain.OutboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		err := m.loadErr
		m.loadErr = nil
		return nil, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := msg
	return &out, nil
}

func (m *memOutboxRepo) MarkSent(ctx context.Context, id int64) error {
	return m.settle(id, domain.OutboxStatusSent, nil)
}

func (m *memOutboxRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	return m.settle(id, domain.OutboxStatusFailed, &reason)
}

func (m *memOutboxRepo) Retry(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Status != domain.OutboxStatusFailed {
		return pgx.ErrNoRows
	}
	msg.Status = domain.OutboxStatusPending
	msg.Error = nil
	m.messages[id] = msg
	return nil
}

func (m *memOutboxRepo) settle(id int64, to domain.OutboxStatus, errText *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Status != domain.OutboxStatusClaimed {
		return pgx.ErrNoRows
	}
	msg.Status = to
	msg.Error = errText
	m.messages[id] = msg
	return nil
}

func (m *memOutboxRepo) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit, offset int) ([]domain.OutboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxMessage
	for id := int64(1); id <= m.nextID; id++ {
		if msg, ok := m.messages[id]; ok && msg.Status == status {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memOutboxRepo) statusCounts() map[domain.OutboxStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.OutboxStatus]int)
	for _, msg := range m.messages {
		counts[msg.Status]++
	}
	return counts
}

type recordingMailer struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (r *recordingMailer) Send(to string, cc []string, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[to]; ok {
		return err
	}
	r.sent = append(r.sent, to)
	return nil
}

func seedMessages(t *testing.T, repo *memOutboxRepo, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Enqueue(context.Background(), &domain.OutboxMessage{
			To:      "user" + string(rune('a'+i)) + "@example.com",
			Subject: "subject",
			Body:    "body",
		})
		require.NoError(t, err)
	}
}

func newTestWorker(repo *memOutboxRepo, mailer *recordingMailer, metrics *observability.Metrics) *OutboxWorker {
	return NewOutboxWorker(repo, mailer, nil, metrics, zap.NewNop(), config.OutboxConfig{
		Workers:          2,
		BatchSize:        10,
		PollIntervalSecs: 1,
	})
}

func TestDrainOnceDeliversPendingBatch(t *testing.T) {
	repo := newMemOutboxRepo()
	mailer := &recordingMailer{}
	metrics := observability.NewMetrics()
	seedMessages(t, repo, 3)

	w := newTestWorker(repo, mailer, metrics)
	w.DrainOnce(context.Background(), zap.NewNop())

	counts := repo.statusCounts()
	assert.Equal(t, 3, counts[domain.OutboxStatusSent])
	assert.Zero(t, counts[domain.OutboxStatusPending])
	assert.Len(t, mailer.sent, 3)
	assert.Equal(t, int64(3), metrics.OutboxCount("sent"))
}

func TestDrainOnceFailureDoesNotBlockBatch(t *testing.T) {
	repo := newMemOutboxRepo()
	mailer := &recordingMailer{failFor: map[string]error{
		"userb@example.com": errors.New("smtp refused"),
	}}
	metrics := observability.NewMetrics()
	seedMessages(t, repo, 3)

	w := newTestWorker(repo, mailer, metrics)
	w.DrainOnce(context.Background(), zap.NewNop())

	counts := repo.statusCounts()
	assert.Equal(t, 2, counts[domain.OutboxStatusSent])
	assert.Equal(t, 1, counts[domain.OutboxStatusFailed])
	assert.Equal(t, int64(1), metrics.OutboxCount("failed"))

	failed, err := repo.ListByStatus(context.Background(), domain.OutboxStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Equal(t, "smtp refused", *failed[0].Error)
}

func TestRetryRequeuesFailedMessage(t *testing.T) {
	repo := newMemOutboxRepo()
	mailer := &recordingMailer{failFor: map[string]error{
		"usera@example.com": errors.New("smtp refused"),
	}}
	metrics := observability.NewMetrics()
	seedMessages(t, repo, 1)

	w := newTestWorker(repo, mailer, metrics)
	w.DrainOnce(context.Background(), zap.NewNop())
	require.Equal(t, 1, repo.statusCounts()[domain.OutboxStatusFailed])

	// Operator requeues; the transport has recovered.
	require.NoError(t, repo.Retry(context.Background(), 1))
	mailer.mu.Lock()
	mailer.failFor = nil
	mailer.mu.Unlock()

	w.DrainOnce(context.Background(), zap.NewNop())
	assert.Equal(t, 1, repo.statusCounts()[domain.OutboxStatusSent])
}

func TestLoadFailureSettlesClaimAsFailed(t *testing.T) {
	repo := newMemOutboxRepo()
	mailer := &recordingMailer{}
	metrics := observability.NewMetrics()
	seedMessages(t, repo, 1)

	repo.loadErr = errors.New("connection reset")
	w := newTestWorker(repo, mailer, metrics)
	w.DrainOnce(context.Background(), zap.NewNop())

	// The claim must not strand the row: it lands in failed, where the
	// operator retry path can reach it.
	counts := repo.statusCounts()
	assert.Zero(t, counts[domain.OutboxStatusClaimed])
	require.Equal(t, 1, counts[domain.OutboxStatusFailed])
	assert.Equal(t, int64(1), metrics.OutboxCount("failed"))

	failed, err := repo.ListByStatus(context.Background(), domain.OutboxStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Contains(t, *failed[0].Error, "connection reset")

	require.NoError(t, repo.Retry(context.Background(), 1))
	w.DrainOnce(context.Background(), zap.NewNop())
	assert.Equal(t, 1, repo.statusCounts()[domain.OutboxStatusSent])
}

func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	repo := newMemOutboxRepo()
	seedMessages(t, repo, 10)

	const claimers = 4
	results := make([][]int64, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			ids, err := repo.Claim(context.Background(), 3)
			assert.NoError(t, err)
			results[slot] = ids
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]int)
	total := 0
	for _, ids := range results {
		for _, id := range ids {
			seen[id]++
			total += 1
		}
	}
	assert.Equal(t, 10, total)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "message %d claimed more than once", id)
	}
}

func TestEnqueueCollapsesDuplicatePending(t *testing.T) {
	repo := newMemOutboxRepo()
	msg := domain.OutboxMessage{To: "dana@example.com", Subject: "s", Body: "b"}

	first := msg
	inserted, err := repo.Enqueue(context.Background(), &first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := msg
	inserted, err = repo.Enqueue(context.Background(), &second)
	require.NoError(t, err)
	assert.False(t, inserted)
}
