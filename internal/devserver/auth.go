package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docchat/internal/storage"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	ctxUserID = "user_id"
)

type tokenClaims struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func newTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *tokenIssuer {
	return &tokenIssuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (t *tokenIssuer) issue(user *storage.User, kind string) (string, error) {
	ttl := t.accessTTL
	email := user.Email
	if kind == tokenRefresh {
		ttl = t.refreshTTL
		email = ""
	}
	now := t.now()
	claims := tokenClaims{
		Type:  kind,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *tokenIssuer) pair(user *storage.User) (gin.H, error) {
	access, err := t.issue(user, tokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := t.issue(user, tokenRefresh)
	if err != nil {
		return nil, err
	}
	return gin.H{"access_token": access, "refresh_token": refresh, "token_type": "bearer"}, nil
}

// parse verifies signature, expiry and kind and returns the user id.
func (t *tokenIssuer) parse(raw, kind string) (int64, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, err
	}
	if claims.Type != kind {
		return 0, fmt.Errorf("expected %s token, got %q", kind, claims.Type)
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		userID, err := s.tokens.parse(strings.TrimSpace(strings.TrimPrefix(header, prefix)), tokenAccess)
		if err != nil {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Password string `json:"password" binding:"required,min=6,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func userJSON(u *storage.User) gin.H {
	return gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "subscription_tier": "free", "created_at": u.CreatedAt}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if s.rateLimited(c, s.register, "register:"+c.ClientIP()) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(c, "hash password", err)
		return
	}
	id, err := s.store.CreateUser(c.Request.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Name), hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			detail(c, http.StatusBadRequest, "This email address is already in use")
			return
		}
		s.internalError(c, "create user", err)
		return
	}
	user, err := s.store.GetUserByID(c.Request.Context(), id)
	if err != nil || user == nil {
		s.internalError(c, "load new user", err)
		return
	}
	s.metrics.IncSignup()
	c.JSON(http.StatusCreated, userJSON(user))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	user, err := s.store.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		s.internalError(c, "load user", err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		detail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	pair, err := s.tokens.pair(user)
	if err != nil {
		s.internalError(c, "issue tokens", err)
		return
	}
	s.metrics.IncLogin()
	c.JSON(http.StatusOK, pair)
}

// handleRefresh accepts the refresh token as a query parameter or JSON body.
func (s *Server) handleRefresh(c *gin.Context) {
	raw := c.Query("refresh_token")
	if raw == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = c.ShouldBindJSON(&body)
		raw = body.RefreshToken
	}
	if raw == "" {
		validationError(c, errors.New("refresh_token is required"))
		return
	}
	id, err := s.tokens.parse(raw, tokenRefresh)
	if err != nil {
		detail(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	user, err := s.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, "load user", err)
		return
	}
	if user == nil {
		detail(c, http.StatusUnauthorized, "User not found")
		return
	}
	pair, err := s.tokens.pair(user)
	if err != nil {
		s.internalError(c, "issue tokens", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.store.GetUserByID(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, "load user", err)
		return
	}
	if user == nil {
		detail(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}
