package echoapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string   `json:"_id"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	OrigIssuedAt int64    `json:"oriat,omitempty"`
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()

	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:       usr.ID,
		Role:         usr.Role,
		Permissions:  usr.Permissions,
		OrigIssuedAt: oriat,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// newJWTMiddleware only checks the bearer token.
func newJWTMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: echojwt.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(Claims) },
		ErrorHandler: func(echo.Context, error) error {
			return errPleaseAuthenticate
		},
	})
}

// newAuthMiddleware checks the bearer token and loads its User, who must still be active.
func newAuthMiddleware(conf *core.Config, svc user.Service) echo.MiddlewareFunc {
	jwtMw := newJWTMiddleware(conf)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMw(func(ctx echo.Context) error {
			usr, err := loadTokenUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errPleaseAuthenticate
			}
			return next(ctx)
		})
	}
}

func authenticate(ctx echo.Context, uname, pwd string, svc user.Service) (user.User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx.Request().Context(), uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errInvalidCredentials
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errInvalidCredentials
	}
	if !usr.IsActive {
		return user.User{}, errAccountDisabled
	}
	usr, err = svc.SetLastLogin(ctx.Request().Context(), usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errPleaseAuthenticate
}

// loadTokenUser finds the User of the token claims and stores them in the context.
func loadTokenUser(ctx echo.Context, svc user.Service) (user.User, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errPleaseAuthenticate
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errPleaseAuthenticate
}

// getContextUserRef returns the reference stamped on the documents the context User writes.
func getContextUserRef(ctx echo.Context) (sms.UserRef, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return sms.UserRef{}, err
	}
	return sms.UserRef{ID: usr.ID, Username: usr.Username}, nil
}

func refreshToken(ctx echo.Context, conf *core.Config, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	usr, err := loadTokenUser(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDisabled
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(conf, GetUserClaims(conf, usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
