package service

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// KeyOfflineMode persists the user's forced offline switch.
const KeyOfflineMode = "offlineMode"

// ConnectivityState is the transport signal plus the user override.
type ConnectivityState struct {
	Online           bool `json:"isOnline"`
	OfflineMode      bool `json:"isOfflineMode"`
	EffectiveOffline bool `json:"effectiveOffline"`
}

type Syncer interface {
	SyncWithServer(ctx context.Context) (SyncReport, error)
}

// NetworkManager tracks connectivity and starts a sync when the terminal
// comes back online with pending work. Syncs fire on transitions only.
type NetworkManager struct {
	mu          sync.Mutex
	online      bool
	offlineMode bool

	ctx    context.Context
	store  repository.PersistentStore
	queue  *OfflineQueue
	syncer Syncer
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewNetworkManager restores the persisted offline switch. The transport is
// assumed down until SetOnline reports otherwise. Background syncs run
// under ctx.
func NewNetworkManager(
	ctx context.Context,
	store repository.PersistentStore,
	queue *OfflineQueue,
	syncer Syncer,
	logger *zap.Logger,
) (*NetworkManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := store.GetString(ctx, KeyOfflineMode)
	if err != nil {
		return nil, err
	}
	offlineMode, _ := strconv.ParseBool(raw)
	return &NetworkManager{
		offlineMode: offlineMode,
		ctx:         ctx,
		store:       store,
		queue:       queue,
		syncer:      syncer,
		logger:      logger,
	}, nil
}

func (m *NetworkManager) State() ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectivityState{
		Online:           m.online,
		OfflineMode:      m.offlineMode,
		EffectiveOffline: m.offlineMode || !m.online,
	}
}

// EffectiveOffline reports whether new actions must be queued.
func (m *NetworkManager) EffectiveOffline() bool {
	return m.State().EffectiveOffline
}

// SetOnline records a transport transition.
func (m *NetworkManager) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	forced := m.offlineMode
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", zap.Bool("online", online))
	if online && !forced {
		m.triggerSync("reconnected")
	}
}

func (m *NetworkManager) EnableOfflineMode(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetString(ctx, KeyOfflineMode, "true"); err != nil {
		return err
	}
	m.offlineMode = true
	m.logger.Info("offline mode enabled")
	return nil
}

// DisableOfflineMode clears the switch and syncs right away if online.
func (m *NetworkManager) DisableOfflineMode(ctx context.Context) error {
	m.mu.Lock()
	if err := m.store.SetString(ctx, KeyOfflineMode, "false"); err != nil {
		m.mu.Unlock()
		return err
	}
	wasForced := m.offlineMode
	m.offlineMode = false
	online := m.online
	m.mu.Unlock()

	m.logger.Info("offline mode disabled")
	if wasForced && online {
		m.triggerSync("offline mode disabled")
	}
	return nil
}

// Wait blocks until background syncs started so far have returned.
func (m *NetworkManager) Wait() {
	m.wg.Wait()
}

func (m *NetworkManager) triggerSync(reason string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		pending, err := m.queue.Count(m.ctx, model.QueueStatusPending)
		if err != nil {
			m.logger.Warn("count pending actions", zap.Error(err))
			return
		}
		if pending == 0 {
			return
		}
		m.logger.Info("auto sync", zap.String("reason", reason), zap.Int64("pending", pending))
		if _, err := m.syncer.SyncWithServer(m.ctx); err != nil {
			m.logger.Warn("auto sync", zap.Error(err))
		}
	}()
}
