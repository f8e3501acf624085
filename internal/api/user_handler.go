package api

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfileSchemaVersion is bumped whenever ProfileResponse changes shape.
const ProfileSchemaVersion = 1

type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// --- DTOs ---

// ProfileResponse is the single profile shape. Private fields are only
// filled in for the caller's own profile; IsFollowing only for others.
type ProfileResponse struct {
	Version        int        `json:"version"`
	ID             string     `json:"id"`
	Username       string     `json:"username,omitempty"`
	Nickname       string     `json:"nickname"`
	Name           string     `json:"name,omitempty"`
	PhoneNumber    string     `json:"phoneNumber,omitempty"`
	Birthdate      *time.Time `json:"birthdate,omitempty"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	Followers      []string   `json:"followers"`
	Following      []string   `json:"following"`
	FollowerCount  int        `json:"followerCount"`
	FollowingCount int        `json:"followingCount"`
	IsFollowing    *bool      `json:"isFollowing,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// UserSummary is a search result entry.
type UserSummary struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type UpdateProfileRequest struct {
	Name        *string    `json:"name" binding:"omitempty,max=50"`
	Nickname    *string    `json:"nickname" binding:"omitempty,max=12"`
	PhoneNumber *string    `json:"phoneNumber" binding:"omitempty,max=12"`
	Birthdate   *time.Time `json:"birthdate"`
}

type ImageUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type ConfirmImageRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

// MapUserToProfile builds the profile of user as seen by viewer.
func MapUserToProfile(user *domain.User, viewer primitive.ObjectID, imageURL string) ProfileResponse {
	resp := ProfileResponse{
		Version:        ProfileSchemaVersion,
		ID:             user.ID.Hex(),
		Nickname:       user.Nickname,
		Name:           user.Name,
		ImageURL:       imageURL,
		Followers:      hexIDs(user.Followers),
		Following:      hexIDs(user.Following),
		FollowerCount:  len(user.Followers),
		FollowingCount: len(user.Following),
		CreatedAt:      user.CreatedAt,
	}
	if user.ID == viewer {
		resp.Username = user.Username
		resp.PhoneNumber = user.PhoneNumber
		resp.Birthdate = user.Birthdate
	} else {
		following := false
		for _, id := range user.Followers {
			if id == viewer {
				following = true
				break
			}
		}
		resp.IsFollowing = &following
	}
	return resp
}

// --- Handler Methods ---

// GetMe godoc
// @Summary Get my profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} gin.H "Unauthorized"
// @Router /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.writeProfile(c, userID, userID)
}

// GetUser returns someone else's public profile.
func (h *UserHandler) GetUser(c *gin.Context) {
	viewer, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.writeProfile(c, targetID, viewer)
}

func (h *UserHandler) writeProfile(c *gin.Context, userID, viewer primitive.ObjectID) {
	ctx := c.Request.Context()
	user, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		respondServiceError(c, err, "retrieve profile")
		return
	}
	c.JSON(http.StatusOK, MapUserToProfile(user, viewer, h.userService.ImageURL(ctx, user)))
}

// UpdateMe godoc
// @Summary Update my profile
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 409 {object} gin.H "Nickname or phone number taken"
// @Router /users/me [put]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := h.userService.UpdateProfile(ctx, userID, service.ProfileInput{
		Name:        req.Name,
		Nickname:    req.Nickname,
		PhoneNumber: req.PhoneNumber,
		Birthdate:   req.Birthdate,
	})
	if err != nil {
		respondServiceError(c, err, "update profile")
		return
	}
	c.JSON(http.StatusOK, MapUserToProfile(user, userID, h.userService.ImageURL(ctx, user)))
}

// Search finds users by a case-insensitive nickname fragment.
func (h *UserHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.userService.SearchByNickname(ctx, c.Query("nickname"))
	if err != nil {
		respondServiceError(c, err, "search users")
		return
	}
	results := make([]UserSummary, 0, len(users))
	for i := range users {
		results = append(results, UserSummary{
			ID:       users[i].ID.Hex(),
			Nickname: users[i].Nickname,
			Name:     users[i].Name,
			ImageURL: h.userService.ImageURL(ctx, &users[i]),
		})
	}
	c.JSON(http.StatusOK, results)
}

// Follow godoc
// @Summary Follow a user
// @Tags Users
// @Security BearerAuth
// @Param id path string true "User's ObjectID Hex"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H "Cannot follow yourself"
// @Failure 404 {object} gin.H "User not found"
// @Failure 409 {object} gin.H "Already following"
// @Router /users/{id}/follow [post]
func (h *UserHandler) Follow(c *gin.Context) {
	follower, ok := currentUser(c)
	if !ok {
		return
	}
	followee, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.Follow(c.Request.Context(), follower, followee); err != nil {
		respondServiceError(c, err, "follow user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *UserHandler) Unfollow(c *gin.Context) {
	follower, ok := currentUser(c)
	if !ok {
		return
	}
	followee, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.Unfollow(c.Request.Context(), follower, followee); err != nil {
		respondServiceError(c, err, "unfollow user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RequestImageUpload godoc
// @Summary Get a presigned URL for uploading a profile image
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ImageUploadRequest true "Image content type"
// @Success 200 {object} service.ImageUpload
// @Failure 400 {object} gin.H "Unsupported content type"
// @Failure 503 {object} gin.H "File storage not configured"
// @Router /users/me/image/upload-url [post]
func (h *UserHandler) RequestImageUpload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ImageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	upload, err := h.userService.RequestImageUpload(c.Request.Context(), userID, req.ContentType)
	if err != nil {
		respondServiceError(c, err, "generate upload URL")
		return
	}
	c.JSON(http.StatusOK, upload)
}

// ConfirmImage records the uploaded object as the profile image.
func (h *UserHandler) ConfirmImage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ConfirmImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if err := h.userService.ConfirmImage(c.Request.Context(), userID, req.ObjectKey); err != nil {
		respondServiceError(c, err, "save profile image")
		return
	}
	h.writeProfile(c, userID, userID)
}
