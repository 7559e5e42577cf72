package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/store"
)

// BootstrapAdmin is the account created on first start. It can never be
// deleted.
const (
	BootstrapAdmin   = "admin"
	bootstrapAdminID = 1
)

type UserService struct {
	db     *sql.DB
	users  *store.UserStore
	tokens *auth.Tokens
	logger *slog.Logger
}

func NewUserService(database *sql.DB, tokens *auth.Tokens, logger *slog.Logger) *UserService {
	return &UserService{db: database, users: store.NewUserStore(database), tokens: tokens, logger: logger}
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login checks the credentials of an active user and issues a bearer token.
// Unknown users, inactive users and wrong passwords are indistinguishable to
// the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, domain.NewValidationError("", "username and password are required")
	}

	invalid := &domain.AuthorizationError{Reason: "invalid username or password"}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		s.logger.Info("login rejected", "username", username)
		return nil, invalid
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("login rejected", "username", username)
		return nil, invalid
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login", "user_id", u.ID, "username", u.Username)
	return &LoginResult{Token: token, User: u}, nil
}

// Me returns the current record of the authenticated caller.
func (s *UserService) Me(ctx context.Context, principal domain.Principal) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &domain.NotFoundError{Entity: "user", ID: principal.ID}
	}
	return u, nil
}

func requireAdmin(p domain.Principal) error {
	if !p.IsAdmin() {
		return &domain.AuthorizationError{Reason: "admin role required", Forbidden: true}
	}
	return nil
}

func (s *UserService) List(ctx context.Context, principal domain.Principal) ([]*domain.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

type CreateUserRequest struct {
	Username string
	Password string
	FullName string
	Role     domain.Role
}

func (s *UserService) Create(ctx context.Context, principal domain.Principal, req CreateUserRequest) (*domain.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return nil, domain.NewValidationError("username", "username is required")
	}
	if req.Password == "" {
		return nil, domain.NewValidationError("password", "password is required")
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if !req.Role.Valid() {
		return nil, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", req.Role))
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Create(ctx, req.Username, hash, req.FullName, req.Role)
	if store.IsUniqueViolation(err) {
		return nil, &domain.ConflictError{Entity: "user", Message: fmt.Sprintf("username %q is taken", req.Username)}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", u.ID, "username", u.Username, "role", u.Role, "by", principal.Username)
	return u, nil
}

type UpdateUserRequest struct {
	FullName string
	Role     domain.Role
	IsActive bool
	// Password resets the password when non-empty.
	Password string
}

func (s *UserService) Update(ctx context.Context, principal domain.Principal, id int64, req UpdateUserRequest) (*domain.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", req.Role))
	}
	if id == bootstrapAdminID && (req.Role != domain.RoleAdmin || !req.IsActive) {
		return nil, &domain.ConflictError{Entity: "user", Message: "the bootstrap admin must stay an active admin"}
	}

	var hash string
	if req.Password != "" {
		var err error
		if hash, err = auth.HashPassword(req.Password); err != nil {
			return nil, err
		}
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		users := store.NewUserStore(tx)
		u, err := users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return &domain.NotFoundError{Entity: "user", ID: id}
		}
		if err := users.Update(ctx, id, req.FullName, req.Role, req.IsActive); err != nil {
			return err
		}
		if hash != "" {
			return users.SetPassword(ctx, id, hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", id, "by", principal.Username)
	return s.users.GetByID(ctx, id)
}

func (s *UserService) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if id == bootstrapAdminID {
		return &domain.ConflictError{Entity: "user", Message: "the bootstrap admin cannot be deleted"}
	}
	if id == principal.ID {
		return &domain.ConflictError{Entity: "user", Message: "you cannot delete your own account"}
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return &domain.NotFoundError{Entity: "user", ID: id}
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", "user_id", id, "username", u.Username, "by", principal.Username)
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
// An existing account is left untouched.
func (s *UserService) EnsureAdmin(ctx context.Context, password string) error {
	u, err := s.users.GetByUsername(ctx, BootstrapAdmin)
	if err != nil {
		return err
	}
	if u != nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u, err = s.users.Create(ctx, BootstrapAdmin, hash, "Administrator", domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Info("bootstrap admin created", "user_id", u.ID)
	return nil
}
