package middlewares

import (
	"log"
	"os"
	"strings"

	"github.com/quanwangniuniu/EasySoccerPlay/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

func jwtKey() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// AdminMiddleware guards the admin surface. Requests need a bearer token
// signed with JWT_SECRET whose claims carry the admin role.
func AdminMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer ") {
		ctx.AbortWithStatus(401)
		return
	}
	reqToken := strings.TrimPrefix(bearerToken, "Bearer ")
	if reqToken == "" {
		ctx.AbortWithStatus(401)
		return
	}
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return jwtKey(), nil
	})
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatus(401)
		return
	}
	if !tkn.Valid {
		ctx.AbortWithStatus(401)
		return
	}
	if claims.Role != "admin" {
		ctx.AbortWithStatus(403)
		return
	}
	ctx.Set("role", claims.Role)
	ctx.Set("sub", claims.Subject)
}
