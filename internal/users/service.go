package users

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"memovault/internal/apperr"
	"memovault/internal/auth"
	"memovault/internal/identifier"
)

var (
	errMissingDatabase   = errors.New("users: database handle is required")
	errMissingHasher     = errors.New("users: password hasher is required")
	errMissingIDProvider = errors.New("users: id provider is required")
)

// PasswordHasher abstracts the one-way hash used for stored credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// ServiceConfig wires the dependencies of the account service.
type ServiceConfig struct {
	Database   *gorm.DB
	Hasher     PasswordHasher
	IDProvider identifier.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service persists accounts and enforces the admin-operation business rules.
// Self-protection rules are checked against the acting principal before any
// store call is made.
type Service struct {
	db         *gorm.DB
	hasher     PasswordHasher
	idProvider identifier.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		hasher:     cfg.Hasher,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create provisions a new account. Role defaults to user when empty.
func (s *Service) Create(ctx context.Context, email, password, name, role string) (*Account, error) {
	if email == "" || password == "" || name == "" {
		return nil, apperr.Validation("email, password, and name are required")
	}
	if !ValidEmail(email) {
		return nil, apperr.Validation("malformed email address")
	}
	if len(password) < MinPasswordLength {
		return nil, apperr.Validation("password must be at least 6 characters")
	}
	if role == "" {
		role = RoleUser
	}
	if !ValidRole(role) {
		return nil, apperr.Validation("role must be user or admin")
	}

	taken, err := s.emailTaken(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.New(apperr.KindConflict, "email already in use")
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logError("users.create", "hash_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not create account", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError("users.create", "id_generation_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not create account", err)
	}

	account := Account{
		ID:           id,
		Email:        email,
		PasswordHash: hashed,
		Name:         name,
		Role:         role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		s.logError("users.create", "insert_failed", err, zap.String("email", email))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not create account", err)
	}

	return s.Get(ctx, id)
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		s.logError("users.get", "query_failed", err, zap.String("account_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not load account", err)
	}
	return &account, nil
}

// List returns all accounts, newest first.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&accounts).Error; err != nil {
		s.logError("users.list", "query_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not list accounts", err)
	}
	return accounts, nil
}

// UpdateRequest carries the recognized partial-update fields. Nil pointers
// leave the stored value untouched.
type UpdateRequest struct {
	Email  *string
	Name   *string
	Role   *string
	Active *bool
}

// Update applies a partial update to the target account on behalf of the
// acting principal. An admin may not demote or deactivate themselves; those
// attempts fail before the store is touched.
func (s *Service) Update(ctx context.Context, actorID, id string, req UpdateRequest) (*Account, error) {
	if actorID == id {
		if req.Role != nil && *req.Role != RoleAdmin {
			return nil, apperr.New(apperr.KindForbidden, "cannot remove your own admin role")
		}
		if req.Active != nil && !*req.Active {
			return nil, apperr.New(apperr.KindForbidden, "cannot deactivate your own account")
		}
	}
	if req.Role != nil && !ValidRole(*req.Role) {
		return nil, apperr.Validation("role must be user or admin")
	}
	if req.Email != nil && !ValidEmail(*req.Email) {
		return nil, apperr.Validation("malformed email address")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != existing.Email {
		taken, err := s.emailTaken(ctx, *req.Email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.New(apperr.KindConflict, "email already in use")
		}
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Active != nil {
		updates["is_active"] = *req.Active
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logError("users.update", "update_failed", err, zap.String("account_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not update account", err)
	}

	return s.Get(ctx, id)
}

// ResetPassword sets a new password for the target account (admin
// operation, no current-password check).
func (s *Service) ResetPassword(ctx context.Context, id, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.storePassword(ctx, id, newPassword)
}

// ChangePassword sets a new password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperr.Validation("current and new password are required")
	}
	if len(newPassword) < MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(currentPassword, account.PasswordHash) {
		return apperr.New(apperr.KindUnauthenticated, "current password is incorrect")
	}
	return s.storePassword(ctx, id, newPassword)
}

// Delete removes the target account on behalf of the acting principal.
// Owned notes survive with their owner reference cleared.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return apperr.New(apperr.KindForbidden, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("UPDATE notes SET owner_id = NULL WHERE owner_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Account{}).Error
	})
	if err != nil {
		s.logError("users.delete", "delete_failed", err, zap.String("account_id", id))
		return apperr.Wrap(apperr.KindUnavailable, "could not delete account", err)
	}
	return nil
}

// Authenticate verifies credentials and records the login time. Failures are
// deliberately indistinct between unknown email and wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}
	if err != nil {
		s.logError("users.authenticate", "query_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not authenticate", err)
	}
	if !account.IsActive {
		return nil, apperr.New(apperr.KindUnauthenticated, "account deactivated")
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}

	now := s.clock().UTC()
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", account.ID).
		Update("last_login_at", now).Error; err != nil {
		s.logError("users.authenticate", "last_login_update_failed", err, zap.String("account_id", account.ID))
	}
	account.LastLoginAt = &now
	return &account, nil
}

// ResolveAccount implements the guard's account lookup: principal fields
// plus the active flag for the given account id.
func (s *Service) ResolveAccount(ctx context.Context, accountID string) (auth.Principal, bool, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return auth.Principal{}, false, err
	}
	principal := auth.Principal{
		ID:    account.ID,
		Email: account.Email,
		Name:  account.Name,
		Role:  account.Role,
	}
	return principal, account.IsActive, nil
}

func (s *Service) storePassword(ctx context.Context, id, newPassword string) error {
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logError("users.password", "hash_failed", err)
		return apperr.Wrap(apperr.KindUnavailable, "could not update password", err)
	}
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Update("password_hash", hashed).Error; err != nil {
		s.logError("users.password", "update_failed", err, zap.String("account_id", id))
		return apperr.Wrap(apperr.KindUnavailable, "could not update password", err)
	}
	return nil
}

// emailTaken pre-checks address uniqueness. The check is a separate query,
// not a constraint; concurrent duplicate writes can still race.
func (s *Service) emailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&Account{}).Where("email = ?", email)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		s.logError("users.email_check", "query_failed", err)
		return false, apperr.Wrap(apperr.KindUnavailable, "could not verify email uniqueness", err)
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
