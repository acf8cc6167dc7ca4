package handlers

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/config"
	"github.com/voicethink/coach/internal/conversation"
	"github.com/voicethink/coach/internal/profile"
	"github.com/voicethink/coach/internal/store/rabbitmq"
)

// Deps carries everything the handlers need, constructed once in main and
// injected rather than built from package-level singletons.
type Deps struct {
	DB       *gorm.DB
	Cfg      config.Config
	Logger   *zap.Logger
	Resolver *profile.Resolver
	Profiles *profile.Repo
	Conv     *conversation.Repo
	Orch     *conversation.Orchestrator
	Realtime *ai.RealtimeClient
	Rabbit   *rabbitmq.Publisher
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{Deps: deps}
}
