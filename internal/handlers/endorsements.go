package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"tangohub-backend/internal/common"
	"tangohub-backend/internal/config"
	"tangohub-backend/internal/email"
	"tangohub-backend/internal/models"
	"tangohub-backend/internal/notifications"
	"tangohub-backend/internal/reputation"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// EndorsementsCreated counts successful endorsement creations by role.
// Registered by the server during metrics setup.
var EndorsementsCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: "reputation",
		Name:      "endorsements_created_total",
		Help:      "The number of endorsements created, by tango role",
	},
	[]string{"role"},
)

type EndorsementHandler struct {
	common.ServerState
	Reputation *reputation.Service
	Limiter    *CreationLimiter
}

func NewEndorsementHandler(db *gorm.DB, cfg *config.Config, jwt common.JWTIssuer, redisClient *redis.Client, emailClient email.EmailClient) *EndorsementHandler {
	return &EndorsementHandler{
		ServerState: common.ServerState{
			DB:          db,
			Config:      cfg,
			JwtIssuer:   jwt,
			Redis:       redisClient,
			EmailClient: emailClient,
		},
		Reputation: reputation.New(db),
		Limiter:    NewCreationLimiter(redisClient, cfg.Reputation.DailyEndorsementLimit),
	}
}

type CreateEndorsementRequest struct {
	EndorseeID string           `json:"endorsee_id" validate:"required"`
	TangoRole  models.TangoRole `json:"tango_role" validate:"required,oneof=teacher dj organizer performer"`
	SkillType  string           `json:"skill_type"`
	Rating     *int             `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment    string           `json:"comment"`
}

// CreateEndorsement records a new peer endorsement from the authenticated user
func (h *EndorsementHandler) CreateEndorsement(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	req := new(CreateEndorsementRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Self-endorsement is rejected before anything else
	if req.EndorseeID == user.ID {
		return echo.NewHTTPError(http.StatusBadRequest, reputation.ErrSelfEndorsement.Error())
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	reserved, err := h.Limiter.Reserve(c.Request().Context(), user.ID)
	if err != nil {
		c.Logger().Error("Rate limiter check failed:", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create endorsement")
	}
	if !reserved {
		return echo.NewHTTPError(http.StatusTooManyRequests, "You have reached the maximum number of endorsements per day")
	}

	endorsement, err := h.Reputation.CreateEndorsement(user.ID, reputation.CreateEndorsementInput{
		EndorseeID: req.EndorseeID,
		Role:       req.TangoRole,
		SkillType:  req.SkillType,
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		// Failed creations hand their quota slot back
		if relErr := h.Limiter.Release(c.Request().Context(), user.ID); relErr != nil {
			c.Logger().Error("Failed to release rate limiter slot:", relErr)
		}
		switch {
		case errors.Is(err, reputation.ErrSelfEndorsement),
			errors.Is(err, reputation.ErrInvalidRole),
			errors.Is(err, reputation.ErrInvalidRating):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, reputation.ErrDuplicateEndorsement):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		c.Logger().Errorf("Failed to create endorsement: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create endorsement")
	}

	EndorsementsCreated.WithLabelValues(string(endorsement.Role)).Inc()

	h.notifyEndorsee(c, user, endorsement)

	_ = notifications.SendTelegramNotification(
		fmt.Sprintf("New endorsement: %s -> %s (%s)", user.ID, endorsement.EndorseeID, endorsement.Role), h.Config)

	return c.JSON(http.StatusCreated, endorsement)
}

// notifyEndorsee sends a best-effort email to the endorsed user
func (h *EndorsementHandler) notifyEndorsee(c echo.Context, endorser *models.User, endorsement *models.Endorsement) {
	if h.EmailClient == nil {
		return
	}

	endorsee, err := models.GetUserByID(h.DB, endorsement.EndorseeID)
	if err != nil {
		c.Logger().Warnf("Skipping endorsement email, endorsee %s not found", endorsement.EndorseeID)
		return
	}
	if !endorsee.EmailSubscriptions.EndorsementEmails {
		return
	}

	h.EmailClient.SendEndorsementReceivedEmail(endorsee, endorser.GetDisplayName(), endorsement.Role)
}

// ListEndorsements returns the endorsements a user has received, newest first
func (h *EndorsementHandler) ListEndorsements(c echo.Context) error {
	userID := c.Param("userId")
	if uuid.Validate(userID) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user id")
	}

	var role *models.TangoRole
	if raw := c.QueryParam("role"); raw != "" {
		r := models.TangoRole(raw)
		if !r.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, reputation.ErrInvalidRole.Error())
		}
		role = &r
	}

	endorsements, err := h.Reputation.ListEndorsements(userID, role)
	if err != nil {
		c.Logger().Errorf("Failed to list endorsements: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list endorsements")
	}

	return c.JSON(http.StatusOK, endorsements)
}

// GetResume returns the aggregated tango résumé for a user
func (h *EndorsementHandler) GetResume(c echo.Context) error {
	userID := c.Param("userId")
	if uuid.Validate(userID) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user id")
	}

	resume, err := h.Reputation.GetTangoResume(userID)
	if err != nil {
		c.Logger().Errorf("Failed to build resume: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to build resume")
	}

	return c.JSON(http.StatusOK, resume)
}

type StatsResponse struct {
	reputation.Stats
	OverallScore int                      `json:"overall_score"`
	RoleScores   map[models.TangoRole]int `json:"role_scores"`
}

// GetStats returns endorsement stats with the overall and per-role scores
func (h *EndorsementHandler) GetStats(c echo.Context) error {
	userID := c.Param("userId")
	if uuid.Validate(userID) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user id")
	}

	stats, err := h.Reputation.GetEndorsementStats(userID)
	if err != nil {
		c.Logger().Errorf("Failed to get endorsement stats: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get stats")
	}

	overallScore, err := h.Reputation.CalculateReputationScore(userID)
	if err != nil {
		c.Logger().Errorf("Failed to calculate reputation score: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get stats")
	}

	roleScores := make(map[models.TangoRole]int, len(models.TangoRoles))
	for _, role := range models.TangoRoles {
		score, err := h.Reputation.CalculateRoleScore(userID, role)
		if err != nil {
			c.Logger().Errorf("Failed to calculate %s role score: %v", role, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get stats")
		}
		roleScores[role] = score
	}

	return c.JSON(http.StatusOK, StatsResponse{
		Stats:        *stats,
		OverallScore: overallScore,
		RoleScores:   roleScores,
	})
}

// DeleteEndorsement removes an endorsement created by the authenticated user.
// A row owned by someone else looks exactly like a missing row.
func (h *EndorsementHandler) DeleteEndorsement(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	endorsementID := c.Param("id")
	if endorsementID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing endorsement id")
	}

	if err := h.Reputation.DeleteEndorsement(endorsementID, user.ID); err != nil {
		if errors.Is(err, reputation.ErrEndorsementNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		c.Logger().Errorf("Failed to delete endorsement: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete endorsement")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Endorsement deleted"})
}
