package goToken

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used for one Build call.
type Builder struct {
	config Config
	store  session.Store
	redis  redis.UniversalClient

	userProvider UserProvider
	logger       *zap.Logger
	auditSink    AuditSink
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSessionStore sets the session backend. It takes precedence over WithRedis.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis builds a [session.RedisStore] on client using Config.Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source used for issuance, expiry and record
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret:        cloneBytes(cfg.JWT.Secret),
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		sessionStore: store,
		jwtManager:   jm,
		userProvider: b.userProvider,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		now:          now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(event internalaudit.Event) {
			logger.Warn("audit event dropped", zap.String("event_type", event.EventType))
		},
	}, b.auditSink)
	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

func (e *Engine) flowDeps() flows.Deps {
	verify := flows.VerifyDeps{
		ParseToken:   e.jwtManager.Parse,
		Now:          e.now,
		SessionStore: e.sessionStore,
	}

	return flows.Deps{
		Issue: flows.IssueDeps{
			IssueToken: e.jwtManager.Issue,
			Sync: flows.SyncDeps{
				Now:        e.now,
				RefreshTTL: e.jwtManager.RefreshTTL,
				RefreshExpiry: func(token string) (time.Time, bool) {
					return jwt.DecodeUnverified(token).ExpiresAt()
				},
				SessionStore: e.sessionStore,
			},
		},
		Verify: verify,
		Refresh: flows.RefreshDeps{
			Verify:       verify,
			LoadUser:     e.loadSubject,
			UserNotFound: ErrUserNotFound,
			IssueToken:   e.jwtManager.Issue,
			Now:          e.now,
			SessionStore: e.sessionStore,
		},
		Logout: flows.LogoutDeps{
			Verify:       verify,
			SessionStore: e.sessionStore,
		},
		Introspection: flows.IntrospectionDeps{
			SessionStore:       e.sessionStore,
			Now:                e.now,
			EngineNotReadyErr:  ErrEngineNotReady,
			SessionNotFoundErr: ErrSessionNotFound,
		},
	}
}

func (e *Engine) loadSubject(ctx context.Context, userID string) (jwt.Subject, error) {
	user, err := e.userProvider.GetUser(ctx, userID)
	if err != nil {
		return jwt.Subject{}, err
	}
	return jwt.Subject{
		UserID:  user.UserID,
		Email:   user.Email,
		Roles:   user.Roles,
		Groups:  user.Groups,
		Domains: user.Domains,
	}, nil
}
