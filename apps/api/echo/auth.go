package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const (
	contextTokenKey  = "userToken"
	contextUserKey   = "user"
	contextTenantKey = "tenant"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	TenantID     string   `json:"tenant_id,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStaff      bool     `json:"is_staff,omitempty"`   // -> ADMIN PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> INSTITUTION PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> INSTITUTION PORTAL
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	Roles        []string `json:"roles,omitempty"`
}

// HasRolePrefix reports whether any of the claimed roles belongs to one of the role families.
func (c Claims) HasRolePrefix(prefixes ...string) bool {
	for _, p := range prefixes {
		switch p {
		case user.RoleStaff:
			if c.IsStaff {
				return true
			}
		case user.RoleAdmin:
			if c.IsAdmin {
				return true
			}
		case user.RoleTeacher:
			if c.IsTeacher {
				return true
			}
		case user.RoleStudent:
			if c.IsStudent {
				return true
			}
		}
	}
	return false
}

type tokenIssuer struct {
	conf *core.Config
}

func (ti tokenIssuer) jwtConfig(lookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(ti.conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		TokenLookup:   lookup,
	}
}

func (ti tokenIssuer) claims(usr user.User, origIat ...int64) *Claims {
	now := core.NowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.conf.AppName,
			Subject:   usr.ID,
			Audience:  ti.conf.AppName,
			ExpiresAt: now.Add(ti.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		TenantID:     usr.TenantID,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStaff:      usr.IsStaff(),
		IsAdmin:      usr.IsAdmin(),
		IsTeacher:    usr.IsTeacher(),
		IsStudent:    usr.IsStudent(),
		Roles:        usr.Roles,
	}
}

// sign generates a signed JWT token string representing the user Claims.
func (ti tokenIssuer) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(ti.conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// checkAccess rejects deactivated users and members of unavailable institutions.
func checkAccess(ctx echo.Context, usr user.User, tenantSvc *tenant.Service) error {
	if !usr.Active() {
		return errAccountDeactivated
	}
	if err := tenantSvc.CheckActive(ctx.Request().Context(), usr.TenantID); err != nil {
		if err == tenant.ErrInactive || err == tenant.ErrNotFound {
			return errTenantUnavailable
		}
		return errors.Wrap(err, "checking tenant")
	}
	return nil
}

func (s *Server) authenticate(ctx echo.Context, uname, pwd string) (*Claims, error) {
	rctx := ctx.Request().Context()
	usr, err := s.deps.UserSvc.GetByUsernameOrEmail(rctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if err = checkAccess(ctx, usr, s.deps.TenantSvc); err != nil {
		return nil, err
	}
	if usr, err = s.deps.UserSvc.SetLastLogin(rctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return s.tokens.claims(usr), nil
}

func (s *Server) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := s.contextUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}
	if err = checkAccess(ctx, usr, s.deps.TenantSvc); err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(s.deps.Conf.Server.JWTRefreshExpirationDelta)
	if core.NowFunc().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := s.tokens.sign(s.tokens.claims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func (s *Server) contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := s.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
