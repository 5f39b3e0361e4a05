package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gwi.com/myblog/internal/auth"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/store"
)

const userSearchLimit = 10

type RegisterInput struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type ProfileInput struct {
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Email     string `json:"email" validate:"required,email"`
}

// Profile is a user plus their activity counts.
type Profile struct {
	store.User
	PublishedPosts int `json:"published_posts"`
	Comments       int `json:"comments"`
}

type UserService struct {
	dbStore *store.SQLiteStore
}

func NewUserService(db *store.SQLiteStore) *UserService {
	return &UserService{dbStore: db}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*store.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if strings.ContainsFunc(in.Username, unicode.IsSpace) || strings.Contains(in.Username, "/") {
		return nil, NewValidationError("username may not contain spaces or slashes")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &store.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
	}
	if err := s.dbStore.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, NewConflictError("username is already taken")
		}
		return nil, err
	}
	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("Registered user")
	return user, nil
}

// Authenticate checks credentials and returns the matching active user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.dbStore.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, NewUnauthorizedError("invalid username or password")
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*store.User, error) {
	user, err := s.dbStore.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewNotFoundError("user not found")
	}
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, id int64) (*Profile, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.dbStore.PostCountsByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.dbStore.CountCommentsByAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *user, PublishedPosts: counts[store.PostStatusPublished], Comments: comments}, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (*store.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}
	if err := s.dbStore.UpdateUserProfile(ctx, id, in.FirstName, in.LastName, in.Email); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// SearchUsers finds up to ten users by partial username, excluding the caller.
// A blank query yields no results.
func (s *UserService) SearchUsers(ctx context.Context, query string, callerID int64) ([]store.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []store.User{}, nil
	}
	users, err := s.dbStore.SearchUsers(ctx, query, callerID, userSearchLimit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []store.User{}
	}
	return users, nil
}
