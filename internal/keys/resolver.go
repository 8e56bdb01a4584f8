package keys

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Noctocode/worken-ai/internal/store"
)

// DefaultCreditLimitUSD is the monthly limit of lazily provisioned keys.
const DefaultCreditLimitUSD = 10

// LockKey returns the distributed lock name for provisioning userID's key.
func LockKey(userID string) string { return "worken:keyprov:" + userID }

// Resolver picks the credential that funds a request. It never fails: every
// problem degrades to the deployment-wide fallback credential.
type Resolver struct {
	store       store.Store
	cipher      *Cipher
	provisioner Provisioner
	locker      Locker
	fallback    string
	creditLimit float64
	logger      *zap.Logger

	group singleflight.Group
}

// ResolverConfig wires a Resolver. Provisioner may be nil to disable lazy
// provisioning; Locker defaults to NoopLocker.
type ResolverConfig struct {
	Store       store.Store
	Cipher      *Cipher
	Provisioner Provisioner
	Locker      Locker
	Fallback    string
	CreditLimit float64
	Logger      *zap.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Locker == nil {
		cfg.Locker = NoopLocker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CreditLimit <= 0 {
		cfg.CreditLimit = DefaultCreditLimitUSD
	}
	return &Resolver{
		store:       cfg.Store,
		cipher:      cfg.Cipher,
		provisioner: cfg.Provisioner,
		locker:      cfg.Locker,
		fallback:    cfg.Fallback,
		creditLimit: cfg.CreditLimit,
		logger:      cfg.Logger,
	}
}

// Fallback returns the deployment credential.
func (r *Resolver) Fallback() string { return r.fallback }

// ForProject funds team projects from the team key and personal projects
// from the user key.
func (r *Resolver) ForProject(ctx context.Context, projectID, userID string) string {
	p, err := r.store.Projects().Get(ctx, projectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("loading project for key resolution", zap.String("project_id", projectID), zap.Error(err))
		}
		return r.fallback
	}
	if p.TeamID != nil {
		return r.ForTeam(ctx, *p.TeamID)
	}
	return r.ForUser(ctx, userID)
}

// ForTeam returns the team's stored key. Teams are never provisioned lazily.
func (r *Resolver) ForTeam(ctx context.Context, teamID string) string {
	team, err := r.store.Teams().Get(ctx, teamID)
	if err != nil || team.OpenRouterKeyEncrypted == nil {
		return r.fallback
	}
	return r.decryptOrFallback(*team.OpenRouterKeyEncrypted, zap.String("team_id", teamID))
}

// ForUser returns the user's stored key, provisioning one on first use.
func (r *Resolver) ForUser(ctx context.Context, userID string) string {
	u, err := r.store.Users().Get(ctx, userID)
	if err != nil {
		return r.fallback
	}
	if u.OpenRouterKeyEncrypted != nil {
		return r.decryptOrFallback(*u.OpenRouterKeyEncrypted, zap.String("user_id", userID))
	}
	if r.provisioner == nil {
		return r.fallback
	}

	// The shared call outlives the first caller; waiters must not inherit its cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(userID, func() (any, error) {
		return r.provisionUser(shared, userID)
	})
	if err != nil {
		r.logger.Warn("lazy key provisioning failed, using fallback credential",
			zap.String("user_id", userID), zap.Error(err))
		return r.fallback
	}
	return v.(string)
}

// provisionUser holds the lock, re-reads the user so a concurrent winner's
// key is reused, and otherwise creates and persists a new key.
func (r *Resolver) provisionUser(ctx context.Context, userID string) (string, error) {
	unlock, err := r.locker.Lock(ctx, LockKey(userID))
	if err != nil {
		return "", err
	}
	defer unlock()

	u, err := r.store.Users().Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("re-reading user: %w", err)
	}
	if u.OpenRouterKeyEncrypted != nil {
		return r.cipher.Decrypt(*u.OpenRouterKeyEncrypted)
	}

	key, err := r.provisioner.CreateKey(ctx, "user-"+userID, r.creditLimit)
	if err != nil {
		return "", err
	}
	encrypted, err := r.cipher.Encrypt(key.Key)
	if err != nil {
		return "", err
	}
	if err := r.store.Users().SetOpenRouterKey(ctx, userID, key.Hash, encrypted); err != nil {
		if delErr := r.provisioner.DeleteKey(ctx, key.Hash); delErr != nil {
			r.logger.Warn("deleting unsaved provisioned key", zap.String("user_id", userID), zap.Error(delErr))
		}
		return "", fmt.Errorf("persisting provisioned key: %w", err)
	}

	r.logger.Info("provisioned user key", zap.String("user_id", userID))
	return key.Key, nil
}

func (r *Resolver) decryptOrFallback(encrypted string, owner zap.Field) string {
	key, err := r.cipher.Decrypt(encrypted)
	if err != nil {
		r.logger.Error("decrypting stored key, using fallback credential", owner, zap.Error(err))
		return r.fallback
	}
	return key
}
