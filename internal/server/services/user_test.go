package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{tokens: map[string]string{}}
}

func (n *recordingNotifier) Notify(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.tokens[email] = token
	return nil
}

func (n *recordingNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

type fixture struct {
	svc    *UserService
	repo   *users.MemoryRepository
	verify *recordingNotifier
	reset  *recordingNotifier
	clock  time.Time
	cfg    *config.Config
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{
		repo:   users.NewMemoryRepository(),
		verify: newRecordingNotifier(),
		reset:  newRecordingNotifier(),
		clock:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		cfg:    cfg,
	}
	f.svc = NewUserService(f.repo, &auth.BcryptHasher{Cost: bcrypt.MinCost},
		Notifiers{Verification: f.verify, Reset: f.reset}, cfg, logging.Nop{})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) registerVerified(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.svc.Register(ctx, name, email, password)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.verify.token(email)))
	return u
}

// failingRepo returns err from every call.
type failingRepo struct{ err error }

func (r failingRepo) Create(context.Context, *models.User) (*models.User, error) { return nil, r.err }
func (r failingRepo) GetUserByID(context.Context, string) (*models.User, error)  { return nil, r.err }
func (r failingRepo) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, r.err
}
func (r failingRepo) GetUserByVerificationToken(context.Context, string) (*models.User, error) {
	return nil, r.err
}
func (r failingRepo) GetUserByResetToken(context.Context, string, time.Time) (*models.User, error) {
	return nil, r.err
}
func (r failingRepo) Update(context.Context, *models.User) (*models.User, error) { return nil, r.err }

// conflictingRepo fails the first conflicts Update calls with a version
// conflict, as if another request had written the user in between.
type conflictingRepo struct {
	users.Repository
	conflicts int
	updates   int
}

func (r *conflictingRepo) Update(ctx context.Context, u *models.User) (*models.User, error) {
	r.updates++
	if r.updates <= r.conflicts {
		return nil, common.ErrVersionConflict
	}
	return r.Repository.Update(ctx, u)
}

// --- register ---

func TestRegister_CreatesUnverifiedUserAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, " Alice ", " Alice@X.com ", "Secret123!")
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@x.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.False(t, u.IsVerified)
	assert.Len(t, u.VerificationToken, 2*common.RandomTokenSize)
	assert.NotEqual(t, "Secret123!", u.PasswordHash)
	assert.Equal(t, u.VerificationToken, f.verify.token("alice@x.com"))

	stored, err := f.repo.GetUserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Alice Again", "ALICE@x.com", "Other123!")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	stored, err := f.repo.GetUserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID, "exactly one record persists")
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ name, email, password string }{
		{"", "a@x.com", "p"},
		{"A", "  ", "p"},
		{"A", "a@x.com", ""},
		{"A", "a@x.com", "   "},
		{"A", "a@x.com", "\t\n"},
	} {
		_, err := f.svc.Register(ctx, tc.name, tc.email, tc.password)
		assert.ErrorIs(t, err, common.ErrorValidation, "%+v", tc)
	}

	_, err := f.svc.Register(ctx, "A", "a@x.com", string(make([]byte, 80)))
	assert.ErrorIs(t, err, common.ErrorValidation, "passwords over 72 bytes are rejected")
}

func TestRegister_NotifierFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.verify.err = errors.New("smtp down")

	u, err := f.svc.Register(context.Background(), "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
}

func TestRegister_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.svc.users = failingRepo{err: errors.New("connection refused")}

	_, err := f.svc.Register(context.Background(), "Alice", "alice@x.com", "Secret123!")
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotContains(t, err.Error(), "connection refused")
}

// --- verify ---

func TestVerifyEmail_FlipsFlagAndConsumesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, err)
	token := f.verify.token("alice@x.com")

	require.NoError(t, f.svc.VerifyEmail(ctx, token))

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.VerificationToken)

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, token), common.ErrorNotFound, "stale token")
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, ""), common.ErrorNotFound)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, "bogus"), common.ErrorNotFound)
}

// --- login ---

func TestLogin_BeforeVerificationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret123!")
	assert.ErrorIs(t, err, common.ErrNotVerified)

	_, err = f.svc.Login(ctx, "alice@x.com", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials, "wrong password is checked before verification")
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	_, errWrong := f.svc.Login(ctx, "alice@x.com", "Secret123?")
	_, errUnknown := f.svc.Login(ctx, "nobody@x.com", "Secret123!")

	assert.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_SuccessReturnsVerifiableToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	res, err := f.svc.Login(ctx, "alice@x.com", "Secret123!")
	require.NoError(t, err)

	assert.Equal(t, models.PublicUser{ID: u.ID, Role: models.RoleUser, Email: "alice@x.com", Name: "Alice"}, res.User)

	claims, err := auth.ParseToken(res.Token, []byte(f.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, f.cfg.AccessTokenValidityDuration, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "", "x")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = f.svc.Login(context.Background(), "a@x.com", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

// Logout only expires the cookie: a token minted before it keeps verifying
// until its own expiry.
func TestLogout_IsStateless(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	res, err := f.svc.Login(context.Background(), "alice@x.com", "Secret123!")
	require.NoError(t, err)

	_, err = auth.ParseToken(res.Token, []byte(f.cfg.SecretKey))
	assert.NoError(t, err)
}

// --- profile ---

func TestGetProfile(t *testing.T) {
	f := newFixture(t)
	u := f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	got, err := f.svc.GetProfile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", got.Email)

	_, err = f.svc.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// --- forgot / reset ---

func TestForgotPassword_SetsTenMinuteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetPasswordExpire)
	assert.WithinDuration(t, f.clock.Add(10*time.Minute), *stored.ResetPasswordExpire, time.Second)
	assert.Equal(t, stored.ResetPasswordToken, f.reset.token("alice@x.com"))
	assert.Len(t, stored.ResetPasswordToken, 2*common.RandomTokenSize)
}

func TestForgotPassword_UnknownEmailPolicy(t *testing.T) {
	ctx := context.Background()

	hidden := newFixture(t)
	assert.NoError(t, hidden.svc.ForgotPassword(ctx, "nobody@x.com"))
	assert.Empty(t, hidden.reset.token("nobody@x.com"))

	revealed := newFixture(t, func(c *config.Config) { c.RevealUnknownEmail = true })
	assert.ErrorIs(t, revealed.svc.ForgotPassword(ctx, "nobody@x.com"), common.ErrorNotFound)

	assert.ErrorIs(t, hidden.svc.ForgotPassword(ctx, " "), common.ErrorValidation)
}

func TestResetPassword_AfterWindowFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	token := f.reset.token("alice@x.com")

	f.advance(10*time.Minute + time.Second)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "NewSecret1!"), common.ErrResetTokenInvalid)

	_, err := f.svc.Login(ctx, "alice@x.com", "Secret123!")
	assert.NoError(t, err, "old password still works after a failed reset")
}

func TestResetPassword_ChangesPasswordAndClearsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	token := f.reset.token("alice@x.com")

	f.advance(5 * time.Minute)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "NewSecret1!"))

	_, err := f.svc.Login(ctx, "alice@x.com", "Secret123!")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@x.com", "NewSecret1!")
	assert.NoError(t, err)

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResetPasswordToken)
	assert.Nil(t, stored.ResetPasswordExpire)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "Again123!"), common.ErrResetTokenInvalid, "token is single-use")
}

func TestResetPassword_WhitespacePasswordRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	token := f.reset.token("alice@x.com")

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "\t "), common.ErrorValidation)
	require.NoError(t, f.svc.ResetPassword(ctx, token, " padded secret "), "token survives a rejected attempt")

	_, err := f.svc.Login(ctx, "alice@x.com", " padded secret ")
	assert.NoError(t, err, "passwords are stored untrimmed")
}

func TestResetPassword_GuardsMissingToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "never-issued", "NewSecret1!"), common.ErrResetTokenInvalid)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "", "NewSecret1!"), common.ErrResetTokenInvalid)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "x", ""), common.ErrorValidation)
}

func TestResetPassword_ConcurrentCompletionsOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	token := f.reset.token("alice@x.com")

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.ResetPassword(ctx, token, "NewSecret1!")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, common.ErrResetTokenInvalid)
	}
	assert.Equal(t, 1, wins)
}

// The end-to-end example: register, login before verification, verify, login.
func TestAccountLifecycle_Example(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@x.com", "Secret123!")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice@x.com", "Secret123!")
	require.ErrorIs(t, err, common.ErrNotVerified)

	require.NoError(t, f.svc.VerifyEmail(ctx, f.verify.token("alice@x.com")))

	res, err := f.svc.Login(ctx, "alice@x.com", "Secret123!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice@x.com", res.User.Email)
}

func TestForgotPassword_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")

	repo := &conflictingRepo{Repository: f.repo, conflicts: 1}
	f.svc.users = repo

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	assert.Equal(t, 2, repo.updates)

	stored, err := f.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ResetPasswordToken, f.reset.token("alice@x.com"), "only the persisted token is mailed")
}

func TestForgotPassword_PersistentConflictIsInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "Secret123!")
	f.reset.tokens = map[string]string{}

	repo := &conflictingRepo{Repository: f.repo, conflicts: 100}
	f.svc.users = repo

	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "alice@x.com"), common.ErrorInternal)
	assert.Equal(t, maxConflictRetries, repo.updates)
	assert.Empty(t, f.reset.token("alice@x.com"))
}
