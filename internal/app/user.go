package app

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shopflow/internal/transport/httpapi"
)

// RunUserService запускает сервис пользователей: регистрация, логин,
// профиль и публикация user.registered через outbox.
func RunUserService(ctx context.Context, cfg Config) error {
	inf, err := newInfra(ctx, cfg, "user-service")
	if err != nil {
		return err
	}
	defer inf.close()

	var users domain.UserRepository
	if inf.store != nil {
		users = postgres.NewUserRepository(inf.store)
	} else {
		users = memory.NewUserRepository(inf.memOutbox)
	}

	service := user.NewService(users, cfg.JWTSecret,
		user.WithLogger(inf.logger),
		user.WithTokenTTL(cfg.TokenTTL),
	)

	api := httpapi.NewUserRouter(service,
		httpapi.WithMetrics(inf.metrics),
		httpapi.WithLogger(inf.logger),
	)

	return inf.serve(ctx, api, inf.outboxWorkerJob())
}
