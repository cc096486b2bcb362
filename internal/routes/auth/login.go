package auth

import (
	"net/http"

	appauth "github.com/Project-Sylos/Sylos-Cutover/internal/auth"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h handler) login(ctx *middleware.Context, req loginRequest) {
	if err := h.manager.Authenticate(req.Username, req.Password); err != nil {
		ctx.Error(http.StatusUnauthorized, "invalid credentials", err)
		return
	}

	token, err := h.manager.GenerateToken(req.Username, []string{appauth.RoleOperator})
	if err != nil {
		ctx.Error(http.StatusInternalServerError, "failed to generate token", err)
		return
	}

	h.logger.Info().Str("user", req.Username).Msg("operator logged in")
	ctx.Response(http.StatusOK, loginResponse{Token: token})
}
