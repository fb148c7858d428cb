package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
)

const (
	sourceService   = "user-service"
	defaultTokenTTL = time.Hour
)

// Service отвечает за регистрацию, аутентификацию и выдачу bearer-токенов.
type Service struct {
	users    domain.UserRepository
	secret   []byte
	tokenTTL time.Duration
	logger   *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTokenTTL задаёт срок жизни выдаваемых токенов.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// NewService создаёт сервис пользователей. secret подписывает JWT (HS256).
func NewService(users domain.UserRepository, secret string, options ...Option) *Service {
	s := &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "user-service")
	}
	return s
}

// Register создаёт пользователя и публикует user.registered.
// Хэш пароля никогда не попадает в событие.
func (s *Service) Register(email, name, password, correlationID string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)

	if len(password) < domain.MinPasswordLength {
		return domain.User{}, domain.ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errs := user.Validate(); len(errs) > 0 {
		return domain.User{}, errs[0]
	}

	event, err := kafka.NewOutboxEvent(
		"user", user.ID,
		kafka.EventTypeUserRegistered, kafka.TopicUsers, user.ID,
		correlationID, sourceService,
		kafka.UserRegisteredPayload{UserID: user.ID, Email: user.Email, Name: user.Name},
	)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.users.Create(user, []domain.OutboxEvent{event}); err != nil {
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("user registered")

	return user, nil
}

// Login проверяет пару email/пароль и выдаёт подписанный токен.
// Неизвестный email и неверный пароль неразличимы для клиента.
func (s *Service) Login(email, password string) (string, domain.User, error) {
	user, err := s.users.GetByEmail(strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", domain.User{}, err
	}

	return token, user, nil
}

// Get возвращает пользователя по идентификатору.
func (s *Service) Get(id string) (domain.User, error) {
	return s.users.Get(id)
}

func (s *Service) issueToken(user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken проверяет подпись и срок жизни токена, возвращает user_id.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	return (&TokenVerifier{secret: s.secret}).VerifyToken(tokenString)
}
