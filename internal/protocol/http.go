package protocol

import (
	"encoding/json"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPOptions configure the streamable HTTP transport.
type HTTPOptions struct {
	// JWTSecret enables bearer-token auth on /rpc when non-empty.
	JWTSecret []byte
	// Metrics serves /metrics when true.
	Metrics bool
}

// NewHTTPHandler mounts the server on an echo instance: POST /rpc carries
// JSON-RPC messages, /healthz and /metrics are operational endpoints and
// stay unauthenticated.
func NewHTTPHandler(s *Server, opts HTTPOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	rpc := e.Group("/rpc")
	if len(opts.JWTSecret) > 0 {
		rpc.Use(bearerAuth(opts.JWTSecret))
	}
	rpc.POST("", func(c echo.Context) error {
		var req Request
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusOK, &Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "invalid JSON"},
			})
		}
		resp := s.Handle(c.Request().Context(), req)
		if resp == nil {
			// Notification: acknowledge receipt without a body.
			return c.NoContent(http.StatusAccepted)
		}
		return c.JSON(http.StatusOK, resp)
	})
	return e
}

// SignToken issues an HS256 bearer token for the given subject. Used by the
// serve command to print a client credential at startup.
func SignToken(subject string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	return token.SignedString(secret)
}

func bearerAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get("Authorization")
			if len(h) <= 7 || h[:7] != "Bearer " {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			parsed, err := jwt.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return secret, nil })
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
				if sub, ok := claims["sub"].(string); ok {
					c.Set("subject", sub)
				}
			}
			return next(c)
		}
	}
}
