package realtime

import (
	"context"

	"github.com/yourusername/trivia-live/internal/websocket"
)

// CoreContext связывает планировщик, лобби и движок раунда. Взаимные
// ссылки между ними разрешаются явной сборкой здесь, а не глобальным
// состоянием процесса.
type CoreContext struct {
	Scheduler *Scheduler
	Lobby     *LobbyManager
	Engine    *QuizEngine
}

// NewCoreContext собирает realtime-ядро
func NewCoreContext(config *Config, deps *Dependencies) *CoreContext {
	if config == nil {
		config = DefaultConfig()
	}
	deps.Config = config

	engine := NewQuizEngine(config, deps)
	lobby := NewLobbyManager(config, deps, engine)
	scheduler := NewScheduler(config, deps, lobby, engine)

	return &CoreContext{
		Scheduler: scheduler,
		Lobby:     lobby,
		Engine:    engine,
	}
}

// Run запускает фоновые циклы ядра. Блокируется до отмены ctx.
func (c *CoreContext) Run(ctx context.Context) {
	c.Scheduler.Run(ctx)
}

// IsRoundLive сообщает, идет ли сейчас раунд
func (c *CoreContext) IsRoundLive() bool {
	return c.Engine.IsRoundLive()
}

// RemoveConnection каскадно чистит лобби и раунд при отключении клиента
func (c *CoreContext) RemoveConnection(connectionID string) {
	c.Lobby.RemoveConnection(connectionID)
	c.Engine.RemoveConnection(connectionID)
}

// CleanupContext освобождает ресурсы предыдущего клиентского контекста
// при смене setContext. Выход из quiz-режима убирает из раунда только
// при отсутствии живого раунда; выход из online убирает из лобби.
func (c *CoreContext) CleanupContext(connectionID string, old *websocket.ClientContext) {
	if old == nil {
		return
	}
	switch old.Mode {
	case websocket.ModeQuiz:
		if !c.Engine.IsRoundLive() {
			c.Engine.RemoveConnection(connectionID)
		}
	case websocket.ModeOnline:
		c.Lobby.Leave(connectionID)
	}
}
