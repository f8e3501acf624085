package api

import (
	"alcyxob/fitmate/internal/service"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AuthHandler holds the authentication service dependency.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// --- Request/Response Structs ---

type SignupRequest struct {
	Username    string     `json:"username" binding:"required"`
	Password    string     `json:"password" binding:"required,min=5"`
	Nickname    string     `json:"nickname" binding:"required,max=12"`
	Name        string     `json:"name" binding:"omitempty,max=50"`
	PhoneNumber string     `json:"phoneNumber" binding:"required,max=12"`
	Birthdate   *time.Time `json:"birthdate"`
}

type SignupResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Token   string `json:"token"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse always carries loginSuccess; Message is set on failure only.
type LoginResponse struct {
	LoginSuccess bool   `json:"loginSuccess"`
	UserID       string `json:"userId,omitempty"`
	Token        string `json:"token,omitempty"`
	Message      string `json:"message,omitempty"`
}

// --- Handler Methods ---

// Signup godoc
// @Summary Register a new user
// @Description Creates an account and returns a token for it.
// @Tags Users
// @Accept json
// @Produce json
// @Param user body SignupRequest true "Signup details"
// @Success 201 {object} SignupResponse
// @Failure 400 {object} gin.H "Invalid input (validation error)"
// @Failure 409 {object} gin.H "Conflict (username, nickname or phoneNumber taken)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /users/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Validation error: %v", err)})
		return
	}

	token, user, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Username:    req.Username,
		Password:    req.Password,
		Nickname:    req.Nickname,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Birthdate:   req.Birthdate,
	})
	if err != nil {
		var conflict *service.FieldConflictError
		switch {
		case errors.As(err, &conflict):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": conflict.Error(), "field": conflict.Field})
		case errors.Is(err, service.ErrValidation):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		default:
			log.Printf("ERROR: Signup failed for %q: %v", req.Username, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Could not process registration"})
		}
		return
	}

	c.JSON(http.StatusCreated, SignupResponse{Success: true, UserID: user.ID.Hex(), Token: token})
}

// Login godoc
// @Summary Log in a user
// @Description Authenticates a user and returns a JWT token.
// @Tags Users
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} LoginResponse "Invalid input"
// @Failure 401 {object} LoginResponse "Invalid credentials"
// @Failure 500 {object} LoginResponse "Internal Server Error"
// @Router /users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, LoginResponse{Message: "Username and password are required"})
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuthenticationFailed):
			c.AbortWithStatusJSON(http.StatusUnauthorized, LoginResponse{Message: "Invalid username or password"})
		case errors.Is(err, service.ErrValidation):
			c.AbortWithStatusJSON(http.StatusBadRequest, LoginResponse{Message: err.Error()})
		default:
			log.Printf("ERROR: Login failed for %q: %v", req.Username, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, LoginResponse{Message: "Could not process login"})
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{LoginSuccess: true, UserID: user.ID.Hex(), Token: token})
}
