package memory

import (
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type userRepositoryInMemory struct {
	mu      sync.Mutex
	items   map[string]domain.User
	byEmail map[string]string
	outbox  *OutboxRepository
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository(outbox *OutboxRepository) domain.UserRepository {
	return &userRepositoryInMemory{
		items:   make(map[string]domain.User),
		byEmail: make(map[string]string),
		outbox:  outbox,
	}
}

func (r *userRepositoryInMemory) Create(user domain.User, events []domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return domain.ErrEmailTaken
	}

	r.items[user.ID] = user
	r.byEmail[email] = user.ID

	if r.outbox == nil || len(events) == 0 {
		return nil
	}
	return r.outbox.Append(events)
}

func (r *userRepositoryInMemory) Get(id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetByEmail(email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.items[id], nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
