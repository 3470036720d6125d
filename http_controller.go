package testkit

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// RegisterTestDataRoutes mounts the provisioning endpoints under the
// controller's base path. Every route sits behind the secret guard, so a
// deployment without a configured secret serves nothing but 404s.
func RegisterTestDataRoutes[T any](app router.Router[T], opts ...TestDataControllerOption) *TestDataController {
	controller := NewTestDataController(opts...)
	guard := controller.SecretGuard()

	app.
		Post(controller.routePath(controller.Routes.User), controller.ProvisionUser, guard).
		SetName("test-data.user.post")

	app.
		Delete(controller.routePath(controller.Routes.User), controller.DeprovisionUser, guard).
		SetName("test-data.user.delete")

	app.
		Get(controller.routePath(controller.Routes.Capabilities), controller.Capabilities, guard).
		SetName("test-data.capabilities.get")

	return controller
}

type TestDataControllerRoutes struct {
	User         string
	Capabilities string
}

type TestDataController struct {
	Debug               bool
	Logger              Logger
	Repo                RepositoryManager
	DB                  *bun.DB
	Registry            *Registry
	Cookies             SessionCookieService
	Config              Config
	Routes              *TestDataControllerRoutes
	DetectedAuthPlugins []string
}

type TestDataControllerOption func(*TestDataController) *TestDataController

func WithTestDataLogger(logger Logger) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithTestDataRepo(repo RepositoryManager) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.Repo = repo
		return c
	}
}

func WithTestDataDB(db *bun.DB) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.DB = db
		return c
	}
}

func WithTestDataRegistry(registry *Registry) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.Registry = registry
		return c
	}
}

func WithTestDataConfig(cfg Config) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.Config = cfg.WithDefaults()
		return c
	}
}

func WithTestDataCookies(cookies SessionCookieService) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.Cookies = cookies
		return c
	}
}

// WithDetectedAuthPlugins records the identifiers of auth features the host
// application enabled, surfaced verbatim through the capabilities endpoint.
func WithDetectedAuthPlugins(ids ...string) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.DetectedAuthPlugins = ids
		return c
	}
}

func WithTestDataDebug(debug bool) TestDataControllerOption {
	return func(c *TestDataController) *TestDataController {
		c.Debug = debug
		return c
	}
}

func NewTestDataController(opts ...TestDataControllerOption) *TestDataController {
	c := &TestDataController{
		Logger: defLogger{},
		Config: Config{}.WithDefaults(),
		Routes: &TestDataControllerRoutes{
			User:         "/user",
			Capabilities: "/capabilities",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in test data controller...")
	}

	if c.DB == nil {
		panic("Missing bun.DB in test data controller...")
	}

	if c.Registry == nil {
		c.Registry = MustRegistry()
	}

	if c.Cookies == nil {
		c.Cookies = NewSessionCookieService([]byte(c.Config.SigningKey), c.Config.Issuer, c.Logger)
	}

	return c
}

func (a *TestDataController) routePath(route string) string {
	return fmt.Sprintf("%s%s", a.Config.BasePath, route)
}

// SecretGuard gates every test data route. No configured secret means the
// endpoints do not exist as far as callers can tell: 404, not 401, so the
// surface stays invisible in production. A configured secret with a bad or
// missing header is a plain 401.
func (a *TestDataController) SecretGuard() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if !a.Config.Enabled() {
				return a.renderError(ctx, ErrEndpointsDisabled)
			}

			secret := ctx.GetString(HeaderTestDataSecret, "")
			if secret == "" || secret != a.Config.Secret {
				return a.renderError(ctx, ErrSecretMismatch)
			}

			return hf(ctx)
		}
	}
}

// ProvisionUserRequest is the POST payload for creating a test user.
type ProvisionUserRequest struct {
	Email      string                    `json:"email"`
	Name       string                    `json:"name,omitempty"`
	Password   string                    `json:"password,omitempty"`
	Phone      string                    `json:"phone,omitempty"`
	PluginData map[string]map[string]any `json:"pluginData,omitempty"`
}

// Validate will run validation rules
func (r ProvisionUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Length(8, 100),
		),
	)
}

// DeprovisionUserRequest is the DELETE payload for tearing a test user down.
type DeprovisionUserRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r DeprovisionUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *TestDataController) ProvisionUser(ctx router.Context) error {
	payload := new(ProvisionUserRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("provision user parse payload: %v", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error": "could not parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("provision user validate payload: %v", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "invalid request payload",
			"validation": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= TEST DATA PROVISION ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==================================")
	}

	var res *CreateTestUserResponse

	req := CreateTestUserMessage{
		Email:      payload.Email,
		Name:       payload.Name,
		Password:   payload.Password,
		Phone:      payload.Phone,
		PluginData: payload.PluginData,
		OnResponse: func(resp *CreateTestUserResponse) {
			res = resp
		},
	}

	createUser := NewCreateTestUserHandler(
		a.DB,
		a.Repo,
		a.Registry,
		a.Cookies,
		WithCreateLogger(a.Logger),
		WithSessionTTL(a.Config.SessionTTL),
	)

	if err := createUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("provision user execute: %v", err)
		return a.renderError(ctx, err)
	}

	a.setSessionCookie(ctx, res.Cookie, res.Session.ExpiresAt)

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"user":    res.User.Public(),
		"session": res.Session.Info(),
		"plugins": res.Plugins,
	})
}

func (a *TestDataController) DeprovisionUser(ctx router.Context) error {
	payload := new(DeprovisionUserRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("deprovision user parse payload: %v", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error": "could not parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("deprovision user validate payload: %v", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"error":      "invalid request payload",
			"validation": err.Error(),
		})
	}

	var res *DeleteTestUserResponse

	req := DeleteTestUserMessage{
		Email: payload.Email,
		OnResponse: func(resp *DeleteTestUserResponse) {
			res = resp
		},
	}

	deleteUser := NewDeleteTestUserHandler(a.DB, a.Repo, a.Registry, WithDeleteLogger(a.Logger))

	if err := deleteUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("deprovision user execute: %v", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"success":  res.Success,
		"warnings": res.Warnings,
	})
}

func (a *TestDataController) Capabilities(ctx router.Context) error {
	plugins := a.Registry.IDs()

	detected := a.DetectedAuthPlugins
	if detected == nil {
		detected = []string{}
	}

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"plugins":             plugins,
		"detectedAuthPlugins": detected,
	})
}

func (a *TestDataController) setSessionCookie(ctx router.Context, value string, expires time.Time) {
	ctx.Cookie(&router.Cookie{
		Name:     a.Config.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// renderError maps rich errors onto HTTP responses, falling back to a bare
// 500 for anything unclassified.
func (a *TestDataController) renderError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status == 0 {
			status = fiber.StatusInternalServerError
		}

		body := map[string]any{
			"error": richErr.Message,
		}
		if richErr.TextCode != "" {
			body["code"] = richErr.TextCode
		}
		if len(richErr.Metadata) > 0 {
			body["metadata"] = richErr.Metadata
		}

		return ctx.JSON(status, body)
	}

	return ctx.JSON(fiber.StatusInternalServerError, map[string]any{
		"error": err.Error(),
	})
}
