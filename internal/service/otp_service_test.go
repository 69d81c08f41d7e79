package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
)

// ============================================================================
// Mocks
// ============================================================================

// MockUserRepository implements repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmailWithPassword(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByEmail(email string) (bool, error) {
	args := m.Called(email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdatePasswordByEmail(email, newPassword string) error {
	args := m.Called(email, newPassword)
	return args.Error(0)
}

// MockOtpTokenRepository implements repository.OtpTokenRepository
type MockOtpTokenRepository struct {
	mock.Mock
}

func (m *MockOtpTokenRepository) Create(ctx context.Context, token *entity.OtpToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockOtpTokenRepository) Get(ctx context.Context, email string, purpose entity.OtpPurpose) (*entity.OtpToken, error) {
	args := m.Called(ctx, email, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.OtpToken), args.Error(1)
}

func (m *MockOtpTokenRepository) Update(ctx context.Context, token *entity.OtpToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockOtpTokenRepository) DeleteAll(ctx context.Context, email string, purpose entity.OtpPurpose) error {
	args := m.Called(ctx, email, purpose)
	return args.Error(0)
}

func (m *MockOtpTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmailService implements EmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendOtpCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	args := m.Called(ctx, toEmail, code, idempotencyKey)
	return args.Error(0)
}

func (m *MockEmailService) SendContactMessage(ctx context.Context, msg ContactMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockEmailService) SendSubscribeEmails(ctx context.Context, subscriberEmail string) error {
	args := m.Called(ctx, subscriberEmail)
	return args.Error(0)
}

// ============================================================================
// Helpers
// ============================================================================

const testPepper = "test-pepper"

func createTestOtpService(
	userRepo *MockUserRepository,
	otpRepo *MockOtpTokenRepository,
	emailService *MockEmailService,
) *OtpService {
	svc, err := NewOtpService(userRepo, otpRepo, emailService, 130*time.Second, 5, testPepper)
	if err != nil {
		panic(err)
	}
	return svc
}

// liveToken builds an unexpired challenge whose stored hash matches the given
// plaintext code, the way createAndSend would have persisted it.
func liveToken(email string, purpose entity.OtpPurpose, code string, staged *entity.StagedRegistration) *entity.OtpToken {
	now := time.Now()
	return &entity.OtpToken{
		Email:       email,
		Purpose:     purpose,
		CodeHash:    hashOtpCode(code, "somesalt", testPepper),
		CodeSalt:    "somesalt",
		ExpiresAt:   now.Add(2 * time.Minute),
		Attempts:    0,
		MaxAttempts: 5,
		Staged:      staged,
		CreatedAt:   now,
	}
}

// ============================================================================
// Tests: registration flow
// ============================================================================

func TestOtpService_SendRegisterCode_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)
	mockEmail := new(MockEmailService)

	var createdToken *entity.OtpToken
	var sentCode string

	mockUserRepo.On("ExistsByEmail", "new@example.com").Return(false, nil)
	mockOtpRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.OtpToken")).
		Run(func(args mock.Arguments) {
			createdToken = args.Get(1).(*entity.OtpToken)
		}).Return(nil)
	mockEmail.On("SendOtpCode", mock.Anything, "new@example.com", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			sentCode = args.String(2)
		}).Return(nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, mockEmail)

	// Act
	err := svc.SendRegisterCode(context.Background(), "Ann", "  NEW@example.com ", "Secret123!")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, createdToken)
	assert.Equal(t, "new@example.com", createdToken.Email, "email must be normalized before staging")
	assert.Equal(t, entity.PurposeRegister, createdToken.Purpose)
	assert.Equal(t, 0, createdToken.Attempts)
	assert.Equal(t, 5, createdToken.MaxAttempts)
	assert.False(t, createdToken.Verified)
	assert.WithinDuration(t, time.Now().Add(130*time.Second), createdToken.ExpiresAt, 2*time.Second)

	require.NotNil(t, createdToken.Staged)
	assert.Equal(t, "Ann", createdToken.Staged.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(createdToken.Staged.PasswordHash), []byte("Secret123!")),
		"staged password must be a bcrypt hash of the submitted password")

	// The plaintext code is only ever handed to the email gateway.
	require.Len(t, sentCode, 6)
	assert.NotContains(t, createdToken.CodeHash, sentCode)
	assert.Equal(t, hashOtpCode(sentCode, createdToken.CodeSalt, testPepper), createdToken.CodeHash)

	mockUserRepo.AssertExpectations(t)
	mockOtpRepo.AssertExpectations(t)
	mockEmail.AssertExpectations(t)
}

func TestOtpService_SendRegisterCode_DuplicateEmail(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)
	mockEmail := new(MockEmailService)

	mockUserRepo.On("ExistsByEmail", "taken@example.com").Return(true, nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, mockEmail)

	// Act
	err := svc.SendRegisterCode(context.Background(), "Ann", "taken@example.com", "Secret123!")

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	mockOtpRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockEmail.AssertNotCalled(t, "SendOtpCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOtpService_SendRegisterCode_NameTooShort(t *testing.T) {
	svc := createTestOtpService(new(MockUserRepository), new(MockOtpTokenRepository), new(MockEmailService))

	err := svc.SendRegisterCode(context.Background(), "Al", "a@example.com", "Secret123!")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOtpService_SendRegisterCode_DeliveryFailure(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)
	mockEmail := new(MockEmailService)

	mockUserRepo.On("ExistsByEmail", "new@example.com").Return(false, nil)
	mockOtpRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.OtpToken")).Return(nil)
	mockEmail.On("SendOtpCode", mock.Anything, "new@example.com", mock.Anything, mock.Anything).
		Return(assert.AnError)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, mockEmail)

	// Act
	err := svc.SendRegisterCode(context.Background(), "Ann", "new@example.com", "Secret123!")

	// Assert: the challenge stays in place so a later resend can reuse it.
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
	mockOtpRepo.AssertCalled(t, "Create", mock.Anything, mock.AnythingOfType("*entity.OtpToken"))
	mockOtpRepo.AssertNotCalled(t, "DeleteAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestOtpService_VerifyRegisterCode_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)
	mockEmail := new(MockEmailService)

	staged := &entity.StagedRegistration{Name: "Ann", PasswordHash: "$2a$10$fakefakefakefakefakefake"}
	token := liveToken("a@x.com", entity.PurposeRegister, "123456", staged)

	var createdUser *entity.User

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(token, nil)
	mockUserRepo.On("ExistsByEmail", "a@x.com").Return(false, nil)
	mockUserRepo.On("Create", mock.AnythingOfType("*entity.User")).
		Run(func(args mock.Arguments) {
			createdUser = args.Get(0).(*entity.User)
		}).Return(nil)
	mockOtpRepo.On("DeleteAll", mock.Anything, "a@x.com", entity.PurposeRegister).Return(nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, mockEmail)

	// Act
	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "123456")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, createdUser)
	assert.Equal(t, "Ann", createdUser.Name)
	assert.Equal(t, "a@x.com", createdUser.Email)
	assert.Equal(t, staged.PasswordHash, createdUser.Password, "staged hash is committed as-is")
	assert.True(t, createdUser.IsActive)
	mockOtpRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestOtpService_VerifyRegisterCode_WrongCode(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeRegister, "123456", &entity.StagedRegistration{Name: "Ann"})

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(token, nil)
	mockOtpRepo.On("Update", mock.Anything, token).Return(nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "654321")

	// Assert: the failed comparison is counted and persisted.
	assert.ErrorIs(t, err, ErrInvalidOtp)
	assert.Equal(t, 1, token.Attempts)
	mockOtpRepo.AssertCalled(t, "Update", mock.Anything, token)
	mockUserRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestOtpService_VerifyRegisterCode_Expired(t *testing.T) {
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeRegister, "123456", &entity.StagedRegistration{Name: "Ann"})
	token.ExpiresAt = time.Now().Add(-time.Second)

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(token, nil)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "123456")

	assert.ErrorIs(t, err, ErrOtpExpired, "a correct code can not rescue an expired challenge")
}

func TestOtpService_VerifyRegisterCode_NoChallenge(t *testing.T) {
	mockOtpRepo := new(MockOtpTokenRepository)
	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(nil, apperrors.ErrNotFound)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "123456")

	assert.ErrorIs(t, err, ErrOtpExpired, "a consumed or missing challenge reads as expired")
}

func TestOtpService_VerifyRegisterCode_AttemptsExhausted(t *testing.T) {
	// Arrange: five failures already recorded, then the correct code arrives.
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeRegister, "123456", &entity.StagedRegistration{Name: "Ann"})
	token.Attempts = 5

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(token, nil)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "123456")

	// Assert: the cap is checked before the comparison.
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	mockOtpRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestOtpService_VerifyRegisterCode_RaceConflict(t *testing.T) {
	// An account appeared for this email between send and verify.
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeRegister, "123456", &entity.StagedRegistration{Name: "Ann"})

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(token, nil)
	mockUserRepo.On("ExistsByEmail", "a@x.com").Return(true, nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, new(MockEmailService))

	err := svc.VerifyRegisterCode(context.Background(), "a@x.com", "123456")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	mockUserRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestOtpService_ResendRegisterCode_Success(t *testing.T) {
	// Arrange
	mockOtpRepo := new(MockOtpTokenRepository)
	mockEmail := new(MockEmailService)

	staged := &entity.StagedRegistration{Name: "Ann", PasswordHash: "$2a$10$fakefakefakefakefakefake"}
	old := liveToken("a@x.com", entity.PurposeRegister, "123456", staged)

	var newToken *entity.OtpToken

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(old, nil)
	mockOtpRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.OtpToken")).
		Run(func(args mock.Arguments) {
			newToken = args.Get(1).(*entity.OtpToken)
		}).Return(nil)
	mockEmail.On("SendOtpCode", mock.Anything, "a@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, mockEmail)

	// Act
	err := svc.ResendRegisterCode(context.Background(), "a@x.com")

	// Assert: fresh code and expiry, same staged payload.
	require.NoError(t, err)
	require.NotNil(t, newToken)
	assert.Equal(t, staged, newToken.Staged)
	assert.NotEqual(t, old.CodeHash, newToken.CodeHash)
	assert.Equal(t, 0, newToken.Attempts)
	mockEmail.AssertExpectations(t)
}

func TestOtpService_ResendRegisterCode_SessionGone(t *testing.T) {
	mockOtpRepo := new(MockOtpTokenRepository)
	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeRegister).Return(nil, apperrors.ErrNotFound)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	err := svc.ResendRegisterCode(context.Background(), "a@x.com")

	assert.ErrorIs(t, err, ErrRegistrationSessionExpired)
	mockOtpRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// ============================================================================
// Tests: password reset flow
// ============================================================================

func TestOtpService_SendResetCode_UnknownEmail(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)

	mockUserRepo.On("ExistsByEmail", "ghost@example.com").Return(false, nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.SendResetCode(context.Background(), "ghost@example.com")

	// Assert: no challenge is created for an unregistered address.
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	mockOtpRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOtpService_VerifyResetCode_Success(t *testing.T) {
	// Arrange
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeReset, "123456", nil)

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeReset).Return(token, nil)
	mockOtpRepo.On("Update", mock.Anything, token).Return(nil)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.VerifyResetCode(context.Background(), "a@x.com", "123456")

	// Assert: the challenge survives, marked verified, for CompleteReset.
	require.NoError(t, err)
	assert.True(t, token.Verified)
	mockOtpRepo.AssertCalled(t, "Update", mock.Anything, token)
	mockOtpRepo.AssertNotCalled(t, "DeleteAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestOtpService_CompleteReset_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeReset, "123456", nil)
	token.Verified = true

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeReset).Return(token, nil)
	mockUserRepo.On("UpdatePasswordByEmail", "a@x.com", "NewSecret123!").Return(nil)
	mockOtpRepo.On("DeleteAll", mock.Anything, "a@x.com", entity.PurposeReset).Return(nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.CompleteReset(context.Background(), "a@x.com", "NewSecret123!")

	// Assert
	require.NoError(t, err)
	mockUserRepo.AssertExpectations(t)
	mockOtpRepo.AssertExpectations(t)
}

func TestOtpService_CompleteReset_NotVerified(t *testing.T) {
	// Arrange: the challenge exists but the code was never checked.
	mockUserRepo := new(MockUserRepository)
	mockOtpRepo := new(MockOtpTokenRepository)

	token := liveToken("a@x.com", entity.PurposeReset, "123456", nil)

	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeReset).Return(token, nil)

	svc := createTestOtpService(mockUserRepo, mockOtpRepo, new(MockEmailService))

	// Act
	err := svc.CompleteReset(context.Background(), "a@x.com", "NewSecret123!")

	// Assert
	assert.ErrorIs(t, err, ErrResetNotVerified)
	mockUserRepo.AssertNotCalled(t, "UpdatePasswordByEmail", mock.Anything, mock.Anything)
}

func TestOtpService_CompleteReset_NoChallenge(t *testing.T) {
	mockOtpRepo := new(MockOtpTokenRepository)
	mockOtpRepo.On("Get", mock.Anything, "a@x.com", entity.PurposeReset).Return(nil, apperrors.ErrNotFound)

	svc := createTestOtpService(new(MockUserRepository), mockOtpRepo, new(MockEmailService))

	err := svc.CompleteReset(context.Background(), "a@x.com", "NewSecret123!")

	assert.ErrorIs(t, err, ErrResetNotVerified)
}

// ============================================================================
// Tests: code generation
// ============================================================================

func TestGenerateOtpCode_Range(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOtpCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

func TestHashOtpCode_SaltAndPepperMatter(t *testing.T) {
	base := hashOtpCode("123456", "salt-a", "pepper-a")

	assert.NotEqual(t, base, hashOtpCode("123456", "salt-b", "pepper-a"))
	assert.NotEqual(t, base, hashOtpCode("123456", "salt-a", "pepper-b"))
	assert.Equal(t, base, hashOtpCode("123456", "salt-a", "pepper-a"))
}
