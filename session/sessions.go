package session

import (
	"errors"
	"shopfloor/bizerror"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const TokenExpiration = 10 * time.Minute

var TokenCache = cache.New(TokenExpiration, 1*time.Minute)

// ResolveTokenFunc asks the identity collaborator for the session behind a token.
var ResolveTokenFunc = func(token string) (*Session, error) {
	return nil, bizerror.ErrUnauthenticated
}

const KeySecCtx = "SecCtx"
const KeySecToken = "sec_token"

func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return &Session{Context: ctx.Request.Context()}
	}
	s0, ok := value.(*Session)
	if !ok || s0.Token == "" {
		return &Session{Context: ctx.Request.Context()}
	}
	s := s0.Clone()
	s.Context = ctx.Request.Context() // trace context
	return &s
}

func SimpleAuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := extractToken(ctx)
		if token == "" {
			panic(bizerror.ErrUnauthenticated)
		}
		s, err := lookup(token)
		if err != nil {
			panic(err)
		}
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil && s.Token != "" {
		ctx.Set(KeySecCtx, s)
	}
}

func lookup(token string) (*Session, error) {
	if v, found := TokenCache.Get(token); found {
		if s, ok := v.(*Session); ok {
			return s, nil
		}
	}
	s, err := ResolveTokenFunc(token)
	if err != nil {
		if errors.Is(err, bizerror.ErrUnauthenticated) {
			return nil, err
		}
		return nil, &bizerror.ErrDependency{Dependency: "identity", Cause: err}
	}
	if s == nil {
		return nil, bizerror.ErrUnauthenticated
	}
	s.Token = token
	TokenCache.SetDefault(token, s)
	return s, nil
}

func extractToken(ctx *gin.Context) string {
	if auth := ctx.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	token, err := ctx.Cookie(KeySecToken)
	if err != nil {
		return ""
	}
	return token
}
