package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Service implements registration, login, session rotation and password
// changes on top of the credential store and the token service.
type Service struct {
	users  UserStore
	creds  *Credentials
	tokens *TokenService

	// dummyDigest is verified against when the email is unknown so that both
	// failure paths cost one argon2 derivation.
	dummyDigest string
}

// NewService wires the account service.
func NewService(users UserStore, creds *Credentials, tokens *TokenService) (*Service, error) {
	if users == nil || creds == nil || tokens == nil {
		return nil, errors.New("auth: users, credentials and tokens are required")
	}
	dummy, err := creds.Hash("worktrack-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Service{users: users, creds: creds, tokens: tokens, dummyDigest: dummy}, nil
}

// Tokens exposes the token service.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Registration is the input of Register. Role defaults to employee.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      Role
}

// Register validates and persists a new active user. The password digest is
// also the first entry of the user's password history.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleEmployee
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, string(role))
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if err := s.creds.AssertStrength(in.Password, email, first, last); err != nil {
		return User{}, err
	}
	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		Role:         role,
		Active:       true,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and issues a token pair. Unknown emails, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}
	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.creds.Verify(password, s.dummyDigest)
			return TokenPair{}, User{}, ErrInvalidCredentials
		}
		return TokenPair{}, User{}, err
	}
	if !s.creds.Verify(password, u.PasswordHash) || !u.Active {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.IssuePair(ctx, u.Principal())
	if err != nil {
		return TokenPair{}, User{}, err
	}
	return pair, u, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the presented refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

// Authenticate resolves a principal from an access token without touching storage.
func (s *Service) Authenticate(token string) (Principal, error) {
	return s.tokens.VerifyAccess(token)
}

// Profile returns the stored account of userID.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.users.GetUser(ctx, strings.TrimSpace(userID))
}

// ProfileUpdate changes the caller's name. Nil fields are left as they are;
// email and role are not editable here.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// UpdateProfile applies in to the account of userID and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	u, err := s.users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return User{}, err
	}
	if in.FirstName != nil {
		if u.FirstName, err = personName("first_name", *in.FirstName); err != nil {
			return User{}, err
		}
	}
	if in.LastName != nil {
		if u.LastName, err = personName("last_name", *in.LastName); err != nil {
			return User{}, err
		}
	}
	if err := s.users.UpdateName(ctx, u.ID, u.FirstName, u.LastName); err != nil {
		return User{}, err
	}
	return s.users.GetUser(ctx, u.ID)
}

func personName(field, raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len([]rune(name)) > 150 {
		return "", fmt.Errorf("%w: %s must be at most 150 characters", ErrInvalidInput, field)
	}
	return name, nil
}

// ChangePassword replaces the password of userID after verifying the current
// one, the strength policy and the reuse history.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !s.creds.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.creds.AssertStrength(next, u.Email, u.FirstName, u.LastName); err != nil {
		return err
	}
	if err := s.creds.AssertNotReused(ctx, u.ID, next); err != nil {
		return err
	}
	hash, err := s.creds.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}

// EnsureAdmin creates an admin account with the given credentials unless a
// user with that email already exists. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, bool, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return User{}, false, err
	}
	existing, err := s.users.FindUserByEmail(ctx, normalized)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}
	u, err := s.Register(ctx, Registration{Email: normalized, Password: password, Role: RoleAdmin})
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

// UserPrincipals adapts a UserStore to PrincipalSource.
type UserPrincipals struct {
	Users UserStore
}

// Principal loads the current principal of userID.
func (p UserPrincipals) Principal(ctx context.Context, userID string) (Principal, error) {
	u, err := p.Users.GetUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return u.Principal(), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}
