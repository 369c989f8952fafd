package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/platform/config"
	"github.com/fashion-shop/api/internal/platform/mail"
	pstorage "github.com/fashion-shop/api/internal/platform/storage"
	"github.com/fashion-shop/api/internal/repositories"
	"github.com/fashion-shop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Auth    services.AuthService
	Users   services.UserService
	Catalog services.CatalogService
	Cart    services.CartService
	Orders  services.OrderService
	Admin   services.AdminService
	System  services.SystemService
}

// Deps carries the external collaborators the container cannot build from
// configuration alone.
type Deps struct {
	Registry    repositories.Registry
	Events      services.OrderEventPublisher
	ImageSigner *pstorage.Client
	Build       services.BuildInfo
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Tokens       *auth.TokenManager
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	reg := deps.Registry
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	tokens, err := auth.NewTokenManager(auth.TokenManagerDeps{
		Secret:    cfg.Auth.JWTSecret,
		Issuer:    "fashion-shop-api",
		AccessTTL: cfg.Auth.AccessTokenTTL,
		ResetTTL:  cfg.Auth.ResetTokenTTL,
		Clock:     deps.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build token manager: %w", err)
	}

	svc, err := buildServices(cfg, reg, tokens, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Tokens:       tokens,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, tokens *auth.TokenManager, deps Deps) (Services, error) {
	var svc Services

	mailSender, err := buildMailSender(cfg.SMTP)
	if err != nil {
		return Services{}, err
	}

	authSvc, err := services.NewAuthService(services.AuthServiceDeps{
		Users:        reg.Users(),
		Resets:       reg.PasswordResets(),
		Tokens:       tokens,
		Mail:         mailSender,
		Clock:        deps.Clock,
		ResetURLBase: cfg.Auth.ResetURLBase,
		Logger:       zapEventLogger(deps.Logger.Named("auth")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}
	svc.Auth = authSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Carts:  reg.Carts(),
		Clock:  deps.Clock,
		Logger: zapEventLogger(deps.Logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	catalogDeps := services.CatalogServiceDeps{
		Products:        reg.Products(),
		ImagesBucket:    cfg.Storage.ImagesBucket,
		DefaultCurrency: cfg.Catalog.Currency,
		Clock:           deps.Clock,
		Logger:          zapEventLogger(deps.Logger.Named("catalog")),
	}
	// A nil *storage.Client must not become a non-nil signer interface.
	if deps.ImageSigner != nil {
		catalogDeps.Signer = deps.ImageSigner
	}
	catalogSvc, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		Clock:           deps.Clock,
		DefaultCurrency: cfg.Catalog.Currency,
		Logger:          zapEventLogger(deps.Logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Carts:  reg.Carts(),
		Events: deps.Events,
		Clock:  deps.Clock,
		Logger: zapEventLogger(deps.Logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	adminSvc, err := services.NewAdminService(services.AdminServiceDeps{
		Users:           reg.Users(),
		Orders:          reg.Orders(),
		Carts:           reg.Carts(),
		Clock:           deps.Clock,
		DefaultCurrency: cfg.Catalog.Currency,
		Logger:          zapEventLogger(deps.Logger.Named("admin")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admin service: %w", err)
	}
	svc.Admin = adminSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.Clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// buildMailSender returns nil when SMTP is not configured so password reset
// mail becomes a logged no-op in the auth service.
func buildMailSender(cfg config.SMTPConfig) (services.MailSender, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPSenderDeps{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
	if err != nil {
		return nil, fmt.Errorf("build smtp sender: %w", err)
	}
	return &smtpMailSender{sender: sender}, nil
}

type smtpMailSender struct {
	sender *mail.SMTPSender
}

func (s *smtpMailSender) SendMail(ctx context.Context, to, subject, body string) error {
	return s.sender.Send(ctx, mail.Message{To: to, Subject: subject, Body: body})
}

func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
