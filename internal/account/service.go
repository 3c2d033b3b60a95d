package account

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/job"
)

const (
	defaultIssuer   = "misquote"
	defaultTokenTTL = 24 * time.Hour

	// MaxResumeSize is the largest resume accepted, in bytes.
	MaxResumeSize = 5 << 20
)

var resumeExtensions = []string{".pdf", ".doc", ".docx"}

// mockUsers are the employers owning the built-in job listings.
func mockUsers() []domain.User {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.User{
		{ID: "emp1", Email: "hr@techcorp.com", Name: "Tech Corp", Role: domain.RoleEmployer, Location: "San Francisco, CA", CreateTime: created},
		{ID: "emp2", Email: "jobs@designstudio.com", Name: "Design Studio", Role: domain.RoleEmployer, Location: "New York, NY", CreateTime: created},
		{ID: "emp3", Email: "careers@startupxyz.com", Name: "StartupXYZ", Role: domain.RoleEmployer, Location: "Austin, TX", CreateTime: created},
	}
}

type Config struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
	Now      func() time.Time
	// Users replaces the built-in accounts.
	Users []domain.User
}

// Service keeps job-board accounts in memory and issues their session tokens.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	users   map[string]*domain.User
	byEmail map[string]string
}

func NewService(c Config) *Service {
	s := &Service{
		secret:  c.Secret,
		issuer:  c.Issuer,
		ttl:     c.TokenTTL,
		now:     c.Now,
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}

	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	users := c.Users
	if len(users) == 0 {
		users = mockUsers()
	}
	for _, u := range users {
		u.Email = strings.ToLower(u.Email)
		if u.Skills == nil {
			u.Skills = []string{}
		}
		s.users[u.ID] = cloneUser(&u)
		s.byEmail[u.Email] = u.ID
	}

	return s
}

type claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

type LoginRequest struct {
	Email    string
	Password string
	Role     domain.Role
}

type LoginResponse struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Login signs the user in, creating the account on first use. Any non-empty password is accepted.
func (s *Service) Login(_ context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.InvalidArgument("a valid email is required")
	}
	if req.Password == "" {
		return nil, errors.InvalidArgument("password is required")
	}
	if !req.Role.Valid() {
		return nil, errors.InvalidArgument("unknown role: %q", req.Role)
	}

	s.mu.Lock()
	u, ok := s.users[s.byEmail[email]]
	if ok && u.Role != req.Role {
		s.mu.Unlock()
		return nil, errors.PermissionDenied("account %s is registered as %s", email, u.Role)
	}
	if !ok {
		id, err := uuid.NewV7()
		if err != nil {
			s.mu.Unlock()
			return nil, errors.Internal(err)
		}

		u = &domain.User{
			ID:         id.String(),
			Email:      email,
			Name:       email[:strings.Index(email, "@")],
			Role:       req.Role,
			Skills:     []string{},
			CreateTime: s.now().UTC(),
		}
		s.users[u.ID] = u
		s.byEmail[email] = u.ID
	}
	out := cloneUser(u)
	s.mu.Unlock()

	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   out.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: out.Role,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("sign token: %w", err))
	}

	return &LoginResponse{
		User:      *out,
		Token:     signed,
		ExpiresAt: jwt.NewNumericDate(exp).Time,
	}, nil
}

type Identity struct {
	UserID string
	Role   domain.Role
}

// Authenticate verifies a session token issued by Login.
func (s *Service) Authenticate(_ context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.Unauthenticated("session token is required")
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid session token"),
			errors.WithCause(err),
		)
	}

	s.mu.RLock()
	_, ok := s.users[c.Subject]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Unauthenticated("account no longer exists")
	}

	return &Identity{UserID: c.Subject, Role: c.Role}, nil
}

func (s *Service) Get(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user not found: id=%s", id)
	}

	return cloneUser(u), nil
}

// UpdateProfileRequest patches the profile: nil fields are left untouched.
type UpdateProfileRequest struct {
	UserID     string
	Name       *string
	Phone      *string
	Location   *string
	Bio        *string
	Skills     []string
	Experience *string
	Education  *string
}

func (s *Service) UpdateProfile(_ context.Context, req UpdateProfileRequest) (*domain.User, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, errors.InvalidArgument("name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.UserID]
	if !ok {
		return nil, errors.NotFound("user not found: id=%s", req.UserID)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.Name, req.Name)
	set(&u.Phone, req.Phone)
	set(&u.Location, req.Location)
	set(&u.Bio, req.Bio)
	set(&u.Experience, req.Experience)
	set(&u.Education, req.Education)
	if req.Skills != nil {
		u.Skills = job.NormalizeList(req.Skills)
	}

	return cloneUser(u), nil
}

type UploadResumeRequest struct {
	UserID   string
	Filename string
	Size     int64
}

// UploadResume records the resume on the profile. Only the reference is kept, not the content.
func (s *Service) UploadResume(_ context.Context, req UploadResumeRequest) (*domain.User, error) {
	name := filepath.Base(strings.TrimSpace(req.Filename))
	if name == "." || name == "/" || name == "" {
		return nil, errors.InvalidArgument("resume file name is required")
	}
	if !slices.Contains(resumeExtensions, strings.ToLower(filepath.Ext(name))) {
		return nil, errors.InvalidArgument("resume must be one of %s", strings.Join(resumeExtensions, ", "))
	}
	if req.Size <= 0 || req.Size > MaxResumeSize {
		return nil, errors.InvalidArgument("resume must be between 1 byte and 5MB, got %d bytes", req.Size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.UserID]
	if !ok {
		return nil, errors.NotFound("user not found: id=%s", req.UserID)
	}
	u.Resume = name

	return cloneUser(u), nil
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	out.Skills = slices.Clone(u.Skills)
	return &out
}
