package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
	"warehouse-system/internal/services/notification"
	sysutils "warehouse-system/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:"
	USERS_CACHE_KEY   = "user:list"
	CACHE_TTL_SHORT   = 5 * time.Minute
	CACHE_TTL_MEDIUM  = 30 * time.Minute

	maxNameLength     = 75
	minPasswordLength = 6
	resetTokenTTL     = time.Hour
	defaultTokenTTL   = 24 * time.Hour
	defaultCodeTTL    = 15 * time.Minute
)

// --- Handler ---

type UserHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	sender   notification.Sender
	codes    *VerificationStore
	logger   *zap.Logger
	now      func() time.Time
	tokenTTL time.Duration
	codeTTL  time.Duration
}

type Option func(*UserHandler)

// WithSender enables welcome, password reset and verification emails.
func WithSender(sender notification.Sender) Option {
	return func(s *UserHandler) {
		s.sender = sender
	}
}

func WithVerificationStore(store *VerificationStore) Option {
	return func(s *UserHandler) {
		s.codes = store
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *UserHandler) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *UserHandler) {
		s.now = now
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *UserHandler) {
		s.tokenTTL = ttl
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(s *UserHandler) {
		s.codeTTL = ttl
	}
}

func NewUserHandler(db *gorm.DB, redisClient *redis.Client, opts ...Option) *UserHandler {
	s := &UserHandler{
		db:       db,
		redis:    redisClient,
		logger:   zap.NewNop(),
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
		codeTTL:  defaultCodeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = NewVerificationStore()
	}
	return s
}

func (s *UserHandler) InvalidateUserCaches(ctx context.Context, userIDs ...int32) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, USERS_CACHE_KEY)

	for _, id := range userIDs {
		cacheKey := fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id)
		_ = s.redis.Del(ctx, cacheKey)
	}
}

// --- Helpers ---

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateNames(first, last string) error {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(last) == "" {
		return errs.InvalidArgument("first and last name are required")
	}
	if utf8.RuneCountInString(first) > maxNameLength || utf8.RuneCountInString(last) > maxNameLength {
		return errs.InvalidArgument("first and last name must be at most %d characters", maxNameLength)
	}
	return nil
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errs.InvalidArgument("a valid email address is required")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return errs.InvalidArgument("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func userError(err error, id int32) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound("user %d not found", id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.Conflict("a user with this email already exists")
	default:
		return errs.Internal(err, "database error")
	}
}

func (s *UserHandler) findByEmail(tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := tx.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user with email %s does not exist", email)
		}
		return nil, errs.Internal(err, "database error")
	}
	return &user, nil
}

func (s *UserHandler) emailTaken(tx *gorm.DB, email string, selfID int32) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, selfID).Count(&n).Error; err != nil {
		return errs.Internal(err, "database error")
	}
	if n > 0 {
		return errs.Conflict("a user with email %s already exists", email)
	}
	return nil
}

// notify sends a best effort email. Delivery failures never fail the caller.
func (s *UserHandler) notify(ctx context.Context, recipient, subject, template string, model interface{}) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(ctx, recipient, subject, template, model); err != nil {
		s.logger.Warn("Failed to send email",
			zap.String("recipient", recipient),
			zap.String("template", template),
			zap.Error(err))
	}
}

// --- Authentication & Registration ---

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      int32  `json:"role"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type WelcomeEmailModel struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *UserHandler) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role, ok := models.RoleFromID(in.Role)
	if !ok {
		return nil, errs.InvalidArgument("invalid role specified")
	}

	pwHash, err := sysutils.HashPassword(in.Password)
	if err != nil {
		return nil, errs.Internal(err, "error hashing password")
	}

	user := models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: pwHash,
		Role:         role,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.emailTaken(tx, email, 0); err != nil {
			return err
		}
		return userError(tx.Create(&user).Error, 0)
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateUserCaches(ctx)
	s.logger.Info("User registered", zap.Int32("user_id", user.ID), zap.String("role", string(user.Role)))

	s.notify(ctx, user.Email, "Welcome to the warehouse system", notification.TemplateWelcome, WelcomeEmailModel{
		Name:  user.FirstName + " " + user.LastName,
		Email: user.Email,
	})
	return &user, nil
}

func (s *UserHandler) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errs.InvalidArgument("email and password are required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.Internal(err, "database error")
	}
	if err != nil || !sysutils.CheckPassword(user.PasswordHash, password) {
		return nil, errs.Unauthorized("invalid credentials")
	}

	token, exp, err := sysutils.GenerateToken(user.ID, user.Email, string(user.Role), s.tokenTTL)
	if err != nil {
		return nil, errs.Internal(err, "error generating token")
	}

	return &LoginResult{Token: token, ExpiresAt: exp, User: &user}, nil
}

// --- User Management ---

func (s *UserHandler) GetUser(ctx context.Context, id int32) (*models.User, error) {
	cacheKey := fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var user models.User
			if json.Unmarshal([]byte(cached), &user) == nil {
				return &user, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("Redis error on GET, falling back to DB", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	var user models.User
	if err := s.db.WithContext(ctx).Preload("Warehouses").First(&user, id).Error; err != nil {
		return nil, userError(err, id)
	}

	if s.redis != nil {
		if jsonData, err := json.Marshal(&user); err == nil {
			s.redis.Set(ctx, cacheKey, jsonData, CACHE_TTL_SHORT)
		}
	}
	return &user, nil
}

func (s *UserHandler) ListUsers(ctx context.Context) ([]models.User, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, USERS_CACHE_KEY).Result(); err == nil {
			var users []models.User
			if json.Unmarshal([]byte(cached), &users) == nil {
				return users, nil
			}
		}
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Preload("Warehouses").Order("id").Find(&users).Error; err != nil {
		return nil, errs.Internal(err, "failed to list users")
	}

	if s.redis != nil {
		if jsonData, err := json.Marshal(users); err == nil {
			s.redis.Set(ctx, USERS_CACHE_KEY, jsonData, CACHE_TTL_MEDIUM)
		}
	}
	return users, nil
}

type ProfilePatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

func (s *UserHandler) UpdateProfile(ctx context.Context, id int32, patch ProfilePatch) (*models.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return userError(err, id)
		}

		if patch.FirstName != nil {
			user.FirstName = strings.TrimSpace(*patch.FirstName)
		}
		if patch.LastName != nil {
			user.LastName = strings.TrimSpace(*patch.LastName)
		}
		if err := validateNames(user.FirstName, user.LastName); err != nil {
			return err
		}

		if patch.Email != nil {
			email := normalizeEmail(*patch.Email)
			if err := validateEmail(email); err != nil {
				return err
			}
			if err := s.emailTaken(tx, email, user.ID); err != nil {
				return err
			}
			if email != user.Email {
				user.IsVerified = false
			}
			user.Email = email
		}

		return userError(tx.Save(&user).Error, id)
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateUserCaches(ctx, id)
	return &user, nil
}

func (s *UserHandler) DeleteUser(ctx context.Context, id int32) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := models.User{ID: id}
		if err := tx.Model(&user).Association("Warehouses").Clear(); err != nil {
			return errs.Internal(err, "failed to detach warehouses")
		}
		result := tx.Delete(&models.User{}, id)
		if result.Error != nil {
			return errs.Internal(result.Error, "failed to delete user")
		}
		if result.RowsAffected == 0 {
			return errs.NotFound("user %d not found", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.InvalidateUserCaches(ctx, id)
	return nil
}

// --- Passwords ---

type PasswordResetEmailModel struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

type ResetPasswordInput struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// GeneratePasswordResetToken issues a one hour, single use reset token and
// emails it to the user.
func (s *UserHandler) GeneratePasswordResetToken(ctx context.Context, userID int32) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return "", userError(err, userID)
	}

	token := models.PasswordResetToken{
		Token:      uuid.NewString(),
		Expiration: s.now().UTC().Add(resetTokenTTL),
		UserID:     user.ID,
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return "", errs.Internal(err, "failed to store reset token")
	}

	s.notify(ctx, user.Email, "Password reset", notification.TemplatePasswordReset, PasswordResetEmailModel{
		Name:  user.FirstName + " " + user.LastName,
		Token: token.Token,
	})
	return token.Token, nil
}

func (s *UserHandler) ResetPassword(ctx context.Context, in ResetPasswordInput) (*models.User, error) {
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.findByEmail(tx, in.Email)
		if err != nil {
			return err
		}

		var token models.PasswordResetToken
		if err := tx.Where("token = ?", in.Token).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.InvalidArgument("invalid token")
			}
			return errs.Internal(err, "database error")
		}
		if token.UserID != user.ID {
			return errs.InvalidArgument("token does not belong to this email")
		}
		if token.Expiration.Before(s.now()) {
			return errs.InvalidArgument("token already expired")
		}

		pwHash, err := sysutils.HashPassword(in.Password)
		if err != nil {
			return errs.Internal(err, "error hashing password")
		}
		if err := tx.Model(user).Update("password_hash", pwHash).Error; err != nil {
			return errs.Internal(err, "failed to update password")
		}
		return errs.Internal(tx.Delete(&token).Error, "failed to consume token")
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateUserCaches(ctx, user.ID)
	return user, nil
}

// UpdatePassword changes the password of a user who knows the current one.
func (s *UserHandler) UpdatePassword(ctx context.Context, email, current, next string) (*models.User, error) {
	if err := validatePassword(next); err != nil {
		return nil, err
	}

	user, err := s.findByEmail(s.db.WithContext(ctx), email)
	if err != nil {
		return nil, err
	}
	if !sysutils.CheckPassword(user.PasswordHash, current) {
		return nil, errs.Unauthorized("passwords do not match")
	}

	pwHash, err := sysutils.HashPassword(next)
	if err != nil {
		return nil, errs.Internal(err, "error hashing password")
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", pwHash).Error; err != nil {
		return nil, errs.Internal(err, "failed to update password")
	}

	s.InvalidateUserCaches(ctx, user.ID)
	return user, nil
}

// --- Warehouse Assignment ---

func (s *UserHandler) loadAssignment(tx *gorm.DB, userID, warehouseID int32) (*models.User, *models.Warehouse, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, nil, userError(err, userID)
	}
	var warehouse models.Warehouse
	if err := tx.First(&warehouse, warehouseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errs.NotFound("warehouse %d not found", warehouseID)
		}
		return nil, nil, errs.Internal(err, "database error")
	}
	return &user, &warehouse, nil
}

func (s *UserHandler) AssignWarehouse(ctx context.Context, userID, warehouseID int32) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, warehouse, err := s.loadAssignment(tx, userID, warehouseID)
		if err != nil {
			return err
		}
		return errs.Internal(tx.Model(user).Association("Warehouses").Append(warehouse), "failed to assign warehouse")
	})
	if err != nil {
		return err
	}

	s.InvalidateUserCaches(ctx, userID)
	return nil
}

func (s *UserHandler) RemoveWarehouse(ctx context.Context, userID, warehouseID int32) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, warehouse, err := s.loadAssignment(tx, userID, warehouseID)
		if err != nil {
			return err
		}
		return errs.Internal(tx.Model(user).Association("Warehouses").Delete(warehouse), "failed to remove warehouse")
	})
	if err != nil {
		return err
	}

	s.InvalidateUserCaches(ctx, userID)
	return nil
}

// --- Email Verification ---

type VerificationEmailModel struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (s *UserHandler) SendVerificationCode(ctx context.Context, email string) error {
	user, err := s.findByEmail(s.db.WithContext(ctx), email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return errs.Internal(err, "failed to generate verification code")
	}
	s.codes.Put(user.Email, code, s.now().Add(s.codeTTL))

	if s.sender == nil {
		s.logger.Warn("No email sender configured, verification code not delivered", zap.Int32("user_id", user.ID))
		return nil
	}
	if err := s.sender.Send(ctx, user.Email, "Verify your email", notification.TemplateVerificationCode, VerificationEmailModel{
		Name: user.FirstName + " " + user.LastName,
		Code: code,
	}); err != nil {
		return errs.Internal(err, "failed to send verification code")
	}
	return nil
}

func (s *UserHandler) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.findByEmail(s.db.WithContext(ctx), email)
	if err != nil {
		return err
	}
	if !s.codes.Consume(user.Email, strings.TrimSpace(code), s.now()) {
		return errs.InvalidArgument("invalid or expired verification code")
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_verified", true).Error; err != nil {
		return errs.Internal(err, "failed to verify user")
	}

	s.InvalidateUserCaches(ctx, user.ID)
	return nil
}
