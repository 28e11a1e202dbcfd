package handler

import (
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // expiry timestamps in responses

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/lane-dispatch/internal/config" // app configuration
	"github.com/iliyamo/lane-dispatch/internal/utils"  // helper functions (hashing, token issuing)
)

// AuthHandler exchanges an operator's access key for a short-lived JWT.
// The operator identity set lives in configuration (id -> bcrypt hash),
// injected at construction; there is no account storage and no
// self-service registration for operators.
type AuthHandler struct {
	Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

// ----- DTOs -----

type loginReq struct {
	OperatorID string `json:"operator_id"`
	AccessKey  string `json:"access_key"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type loginResp struct {
	OperatorID string    `json:"operator_id"`
	Access     tokenPart `json:"access"`
}

// Login: verify the access key against the configured hash and return a
// fresh OPERATOR token.  Unknown ids and wrong keys share one 401 body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.OperatorID = strings.TrimSpace(req.OperatorID)
	if req.OperatorID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "operator_id/access_key required"})
	}

	hash, ok := h.Cfg.Operators[req.OperatorID]
	if !ok || !utils.VerifyAccessKey(hash, req.AccessKey) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.OperatorID, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}

	return c.JSON(http.StatusOK, loginResp{
		OperatorID: req.OperatorID,
		Access:     tokenPart{Token: access.Token, Expires: access.Exp},
	})
}
