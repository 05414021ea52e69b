package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mpslytherin/accounts/internal/models"
	"github.com/mpslytherin/accounts/internal/ratelimit"
	pkglogger "github.com/mpslytherin/accounts/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(discardLogger())
}

// MockAccountRepository is an in-memory AccountRepository. Func fields
// override the default behaviour for individual methods.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	nextID   int64
	calls    int

	GetActiveByUsernameFunc func(ctx context.Context, username string) (*models.Account, error)
	CreateFunc              func(ctx context.Context, account *models.Account) (*models.Account, error)
	RecordFailedLoginFunc   func(ctx context.Context, id int64, threshold int, lockUntil time.Time) (*models.LockoutState, error)
	UpdateAvatarFunc        func(ctx context.Context, id int64, avatarURL *string) error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int64]*models.Account),
		nextID:   1,
	}
}

// Calls reports how many repository methods have been invoked
func (m *MockAccountRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Get returns a copy of the stored account
func (m *MockAccountRepository) Get(id int64) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *MockAccountRepository) GetActiveByID(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok || !a.Active {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepository) GetActiveByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetActiveByUsernameFunc != nil {
		return m.GetActiveByUsernameFunc(ctx, username)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, a := range m.accounts {
		if a.Username == username && a.Active {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for id, a := range m.accounts {
		if id != excludeID && a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAccountRepository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for id, a := range m.accounts {
		if id != excludeID && strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	cp := *account
	cp.ID = m.nextID
	cp.CreatedAt = time.Now()
	m.nextID++
	m.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MockAccountRepository) RecordSuccessfulLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.LastAccessAt = &at
	return nil
}

func (m *MockAccountRepository) RecordFailedLogin(ctx context.Context, id int64, threshold int, lockUntil time.Time) (*models.LockoutState, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, id, threshold, lockUntil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		until := lockUntil
		a.LockedUntil = &until
	}
	return &models.LockoutState{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}, nil
}

func (m *MockAccountRepository) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Username != "" {
		a.Username = upd.Username
	}
	if upd.Email != "" {
		a.Email = upd.Email
	}
	if upd.FullName != "" {
		name := upd.FullName
		a.FullName = &name
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (m *MockAccountRepository) UpdateAvatar(ctx context.Context, id int64, avatarURL *string) error {
	if m.UpdateAvatarFunc != nil {
		return m.UpdateAvatarFunc(ctx, id, avatarURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.AvatarURL = avatarURL
	return nil
}

// MockLoginAttemptRepository keeps attempts in insertion order
type MockLoginAttemptRepository struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt

	CreateFunc func(ctx context.Context, attempt *models.LoginAttempt) error
}

func (m *MockLoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *attempt
	cp.ID = int64(len(m.attempts) + 1)
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *MockLoginAttemptRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LoginAttempt
	for _, a := range m.attempts {
		if a.AccountID == accountID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LoginTime.Equal(out[j].LoginTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].LoginTime.After(out[j].LoginTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ForAccount returns every attempt for the account in insertion order
func (m *MockLoginAttemptRepository) ForAccount(accountID int64) []*models.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LoginAttempt
	for _, a := range m.attempts {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out
}

// plainHasher avoids bcrypt cost in unit tests
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(password, hashedPassword string) bool {
	return hashedPassword == "hashed:"+password
}

func (plainHasher) DummyVerify(string) {}

type stubSessions struct {
	issued []int64
	err    error
}

func (s *stubSessions) Issue(accountID int64) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	s.issued = append(s.issued, accountID)
	return "token", time.Now().Add(time.Hour), nil
}

// chanNotifier signals each lockout on a buffered channel
type chanNotifier struct {
	ch chan int64
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{ch: make(chan int64, 4)}
}

func (n *chanNotifier) NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error {
	n.ch <- account.ID
	return nil
}

type authFixture struct {
	service  *AuthService
	accounts *MockAccountRepository
	attempts *MockLoginAttemptRepository
	sessions *stubSessions
	notifier *chanNotifier
}

func newAuthFixture(limiter LoginRateLimiter) *authFixture {
	accounts := NewMockAccountRepository()
	attempts := &MockLoginAttemptRepository{}
	sessions := &stubSessions{}
	notifier := newChanNotifier()
	logger := discardLogger()

	service := NewAuthService(AuthServiceDeps{
		Accounts:    accounts,
		Hasher:      plainHasher{},
		Sessions:    sessions,
		History:     NewHistoryService(attempts, logger),
		Limiter:     limiter,
		Notifier:    notifier,
		Lockout:     DefaultLockoutPolicy,
		Logger:      logger,
		AuditLogger: testAuditLogger(),
	})

	return &authFixture{
		service:  service,
		accounts: accounts,
		attempts: attempts,
		sessions: sessions,
		notifier: notifier,
	}
}

func newLoginLimiter(max int) *ratelimit.Limiter {
	window := 15 * time.Minute
	return ratelimit.NewLimiter(ratelimit.NewMemoryStore(window, max), window, "login:")
}
