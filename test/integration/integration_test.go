//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangohub-backend/internal/config"
	"tangohub-backend/internal/models"
	"tangohub-backend/internal/server"

	"gorm.io/gorm"
)

// setupTestServerFast creates a test server with SQLite in-memory and no Redis.
// This is much faster than using containers (no Docker needed, no container
// startup time) and exercises the actual server.Initialize() path.
func setupTestServerFast(t *testing.T) (*server.Server, func()) {
	cfg := &config.Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Server.DeployDomain = "localhost:8080"
	cfg.Server.Debug = false
	// SQLite in-memory, one database per test - server will detect the driver from the DSN
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.Database.RedisURI = "" // Empty Redis URI - rate limiter falls back to per-process counters
	cfg.Auth.SessionSecret = "test-secret-key-for-testing-only"
	cfg.Resend.DefaultSender = "test@example.com"
	cfg.Reputation.DailyEndorsementLimit = 5

	srv := server.New(cfg)
	srv.Echo.Logger.SetLevel(log.ERROR)

	err := srv.Initialize()
	require.NoError(t, err)

	cleanup := func() {
		// The in-memory database disappears when the last connection closes
		if srv.DB != nil {
			sqlDB, _ := srv.DB.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}
	}

	return srv, cleanup
}

// createTestUser is a helper to create a user in the test database
func createTestUser(t *testing.T, db *gorm.DB, email, firstName, lastName string, years int) *models.User {
	user := &models.User{
		FirstName:         firstName,
		LastName:          lastName,
		Email:             email,
		Password:          "securepassword123",
		YearsOfExperience: years,
		EmailSubscriptions: models.EmailSubscriptions{
			EndorsementEmails: true,
		},
	}

	err := db.Create(user).Error
	require.NoError(t, err)

	return user
}

// getJWTToken is a helper to get a JWT token for a user
func getJWTToken(t *testing.T, srv *server.Server, email string) string {
	token, err := srv.JwtIssuer.GenerateToken(email)
	require.NoError(t, err)
	return token
}

// seedEndorsement inserts an endorsement row directly, bypassing the API
func seedEndorsement(t *testing.T, db *gorm.DB, endorser, endorsee *models.User, role models.TangoRole, skill string, rating int) *models.Endorsement {
	endorsement := &models.Endorsement{
		EndorserID: endorser.ID,
		EndorseeID: endorsee.ID,
		Role:       role,
		SkillType:  skill,
		Rating:     &rating,
	}
	require.NoError(t, db.Create(endorsement).Error)
	return endorsement
}

func postEndorsement(srv *server.Server, token string, payload map[string]interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/endorsements", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func TestManualSignUp_NewUser(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	signUpReq := map[string]interface{}{
		"first_name":          "John",
		"last_name":           "Doe",
		"email":               "john.doe@gmail.com",
		"password":            "securepassword123",
		"years_of_experience": 7,
	}

	body, err := json.Marshal(signUpReq)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/sign-up", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Logf("Response body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusCreated, rec.Code)

	var response map[string]string
	err = json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.NotEmpty(t, response["token"])

	var user models.User
	err = srv.DB.Where("email = ?", "john.doe@gmail.com").First(&user).Error
	require.NoError(t, err)
	assert.Equal(t, "John", user.FirstName)
	assert.Equal(t, "Doe", user.LastName)
	assert.Equal(t, 7, user.YearsOfExperience)
	assert.NotEmpty(t, user.HashedPassword)
}

func TestManualSignIn(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	createTestUser(t, srv.DB, "maria@example.com", "Maria", "Gonzalez", 5)

	signInReq := map[string]string{
		"email":    "maria@example.com",
		"password": "securepassword123",
	}
	body, _ := json.Marshal(signInReq)
	req := httptest.NewRequest(http.MethodPost, "/api/sign-in", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEmpty(t, response["token"])

	// Wrong password is rejected
	signInReq["password"] = "wrongpassword"
	body, _ = json.Marshal(signInReq)
	req = httptest.NewRequest(http.MethodPost, "/api/sign-in", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateEndorsement_Success(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "endorser@example.com", "Ana", "Lopez", 3)
	endorsee := createTestUser(t, srv.DB, "endorsee@example.com", "Juan", "Perez", 8)
	token := getJWTToken(t, srv, endorser.Email)

	rec := postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "teacher",
		"skill_type":  "musicality",
		"rating":      5,
		"comment":     "Incredible musicality in every class",
	})

	if rec.Code != http.StatusCreated {
		t.Logf("Response body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created models.Endorsement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, endorser.ID, created.EndorserID)
	// No reciprocal endorsement existed, so this one is not verified
	assert.False(t, created.IsVerified)

	var stored models.Endorsement
	require.NoError(t, srv.DB.Where("id = ?", created.ID).First(&stored).Error)
	assert.Equal(t, models.RoleTeacher, stored.Role)
	assert.Equal(t, "musicality", stored.SkillType)
}

func TestCreateEndorsement_MutualIsVerified(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "mutual.endorser@example.com", "Bruno", "Barrios", 6)
	endorsee := createTestUser(t, srv.DB, "mutual.endorsee@example.com", "Alicia", "Arias", 4)

	// The endorsee already endorsed the endorser, in a different role
	seedEndorsement(t, srv.DB, endorsee, endorser, models.RolePerformer, "", 5)

	token := getJWTToken(t, srv, endorser.Email)
	rec := postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "teacher",
		"rating":      4,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	var created models.Endorsement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.IsVerified)
}

func TestCreateEndorsement_Unauthorized(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorsee := createTestUser(t, srv.DB, "target@example.com", "Tito", "Torres", 9)

	rec := postEndorsement(srv, "", map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "teacher",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateEndorsement_Rejections(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "rejections@example.com", "Rita", "Romero", 2)
	endorsee := createTestUser(t, srv.DB, "rejections.target@example.com", "Hugo", "Haro", 3)
	token := getJWTToken(t, srv, endorser.Email)

	// Self-endorsement
	rec := postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorser.ID,
		"tango_role":  "teacher",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown role
	rec = postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "violinist",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Rating outside 1..5
	rec = postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "teacher",
		"rating":      6,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// None of the rejected attempts consumed daily quota
	rec = postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "teacher",
		"rating":      5,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateEndorsement_Duplicate(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "dup.endorser@example.com", "Elena", "Estrella", 11)
	endorsee := createTestUser(t, srv.DB, "dup.endorsee@example.com", "Oscar", "Ortiz", 8)
	token := getJWTToken(t, srv, endorser.Email)

	payload := map[string]interface{}{
		"endorsee_id": endorsee.ID,
		"tango_role":  "dj",
		"skill_type":  "tandas",
		"rating":      5,
	}

	rec := postEndorsement(srv, token, payload)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Same tuple again, even with a different rating
	payload["rating"] = 2
	rec = postEndorsement(srv, token, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateEndorsement_DailyLimit(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "busy@example.com", "Carlos", "DiSarli", 20)
	token := getJWTToken(t, srv, endorser.Email)

	for i := 0; i < 5; i++ {
		endorsee := createTestUser(t, srv.DB, fmt.Sprintf("limit%d@example.com", i), "Endorsee", fmt.Sprintf("Number%d", i), 1)
		rec := postEndorsement(srv, token, map[string]interface{}{
			"endorsee_id": endorsee.ID,
			"tango_role":  "teacher",
			"rating":      4,
		})
		assert.Equal(t, http.StatusCreated, rec.Code, "creation %d should succeed", i+1)
	}

	sixth := createTestUser(t, srv.DB, "limit5@example.com", "Endorsee", "Number5", 1)
	rec := postEndorsement(srv, token, map[string]interface{}{
		"endorsee_id": sixth.ID,
		"tango_role":  "teacher",
		"rating":      4,
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other users are unaffected
	otherToken := getJWTToken(t, srv, sixth.Email)
	rec = postEndorsement(srv, otherToken, map[string]interface{}{
		"endorsee_id": endorser.ID,
		"tango_role":  "teacher",
		"rating":      5,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDeleteEndorsement(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorser := createTestUser(t, srv.DB, "del.owner@example.com", "Owner", "One", 1)
	other := createTestUser(t, srv.DB, "del.other@example.com", "Other", "Two", 1)
	endorsee := createTestUser(t, srv.DB, "del.endorsee@example.com", "Endorsee", "Three", 1)

	endorsement := seedEndorsement(t, srv.DB, endorser, endorsee, models.RoleOrganizer, "", 3)

	deleteReq := func(token, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/endorsements/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.Echo.ServeHTTP(rec, req)
		return rec
	}

	// Someone else's delete looks like a missing row
	rec := deleteReq(getJWTToken(t, srv, other.Email), endorsement.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ownerToken := getJWTToken(t, srv, endorser.Email)
	rec = deleteReq(ownerToken, endorsement.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	srv.DB.Model(&models.Endorsement{}).Where("id = ?", endorsement.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	// Deleting again is a 404
	rec = deleteReq(ownerToken, endorsement.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndorsements(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorsee := createTestUser(t, srv.DB, "list.endorsee@example.com", "Lista", "Lopez", 2)
	first := createTestUser(t, srv.DB, "list.first@example.com", "First", "Fan", 1)
	second := createTestUser(t, srv.DB, "list.second@example.com", "Second", "Fan", 1)

	seedEndorsement(t, srv.DB, first, endorsee, models.RoleTeacher, "musicality", 5)
	seedEndorsement(t, srv.DB, second, endorsee, models.RoleDJ, "", 4)

	req := httptest.NewRequest(http.MethodGet, "/api/endorsements/"+endorsee.ID, nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var listed []models.EndorsementWithEndorser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.NotEmpty(t, listed[0].EndorserName)
	assert.NotEmpty(t, listed[1].EndorserName)

	// Role filter
	req = httptest.NewRequest(http.MethodGet, "/api/endorsements/"+endorsee.ID+"?role=teacher", nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, first.ID, listed[0].EndorserID)
	assert.Equal(t, "First Fan", listed[0].EndorserName)

	// Unknown role and malformed user id are rejected
	req = httptest.NewRequest(http.MethodGet, "/api/endorsements/"+endorsee.ID+"?role=violinist", nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/endorsements/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Full résumé over HTTP: a verified teacher endorsement from a mutual
// endorser, an unverified one, and a dj endorsement without a skill.
func TestGetResume(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	u := createTestUser(t, srv.DB, "resume.user@example.com", "Usuario", "Principal", 15)
	a := createTestUser(t, srv.DB, "resume.a@example.com", "Amiga", "Primera", 5)
	b := createTestUser(t, srv.DB, "resume.b@example.com", "Bailarin", "Segundo", 6)
	c := createTestUser(t, srv.DB, "resume.c@example.com", "Cantor", "Tercero", 7)

	seedEndorsement(t, srv.DB, u, a, models.RolePerformer, "", 5)

	// A endorses through the API so the verification snapshot is taken
	rec := postEndorsement(srv, getJWTToken(t, srv, a.Email), map[string]interface{}{
		"endorsee_id": u.ID,
		"tango_role":  "teacher",
		"skill_type":  "musicality",
		"rating":      5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postEndorsement(srv, getJWTToken(t, srv, b.Email), map[string]interface{}{
		"endorsee_id": u.ID,
		"tango_role":  "teacher",
		"skill_type":  "musicality",
		"rating":      4,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postEndorsement(srv, getJWTToken(t, srv, c.Email), map[string]interface{}{
		"endorsee_id": u.ID,
		"tango_role":  "dj",
		"rating":      5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/reputation/resume/"+u.ID, nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resume struct {
		UserID string `json:"user_id"`
		Roles  map[string]struct {
			Endorsements  int     `json:"endorsements"`
			Score         int     `json:"score"`
			AverageRating float64 `json:"average_rating"`
			TopSkills     []struct {
				Skill string `json:"skill"`
				Count int    `json:"count"`
			} `json:"top_skills"`
			VerifiedBy []struct {
				UserID      string `json:"user_id"`
				DisplayName string `json:"display_name"`
			} `json:"verified_by"`
		} `json:"roles"`
		OverallScore         int     `json:"overall_score"`
		TotalEndorsements    int     `json:"total_endorsements"`
		UniqueEndorsers      int     `json:"unique_endorsers"`
		VerifiedEndorsements int     `json:"verified_endorsements"`
		AverageRating        float64 `json:"average_rating"`
		YearsOfExperience    int     `json:"years_of_experience"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resume))

	assert.Equal(t, u.ID, resume.UserID)
	require.Len(t, resume.Roles, 4)

	teacher := resume.Roles["teacher"]
	assert.Equal(t, 90, teacher.Score)
	assert.Equal(t, 2, teacher.Endorsements)
	assert.Equal(t, 4.5, teacher.AverageRating)
	require.Len(t, teacher.TopSkills, 1)
	assert.Equal(t, "musicality", teacher.TopSkills[0].Skill)
	assert.Equal(t, 2, teacher.TopSkills[0].Count)
	require.Len(t, teacher.VerifiedBy, 1)
	assert.Equal(t, a.ID, teacher.VerifiedBy[0].UserID)
	assert.Equal(t, "Amiga Primera", teacher.VerifiedBy[0].DisplayName)

	assert.Equal(t, 100, resume.OverallScore)
	assert.Equal(t, 3, resume.TotalEndorsements)
	assert.Equal(t, 3, resume.UniqueEndorsers)
	assert.Equal(t, 1, resume.VerifiedEndorsements)
	assert.Equal(t, 4.7, resume.AverageRating)
	assert.Equal(t, 15, resume.YearsOfExperience)
}

func TestGetStats(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	endorsee := createTestUser(t, srv.DB, "stats.endorsee@example.com", "Stats", "Target", 4)
	endorser := createTestUser(t, srv.DB, "stats.endorser@example.com", "Stats", "Source", 2)

	seedEndorsement(t, srv.DB, endorser, endorsee, models.RoleTeacher, "technique", 4)

	req := httptest.NewRequest(http.MethodGet, "/api/reputation/stats/"+endorsee.ID, nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalEndorsements    int            `json:"total_endorsements"`
		UniqueEndorsers      int            `json:"unique_endorsers"`
		VerifiedEndorsements int            `json:"verified_endorsements"`
		AverageRating        float64        `json:"average_rating"`
		OverallScore         int            `json:"overall_score"`
		RoleScores           map[string]int `json:"role_scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	assert.Equal(t, 1, stats.TotalEndorsements)
	assert.Equal(t, 1, stats.UniqueEndorsers)
	assert.Equal(t, 0, stats.VerifiedEndorsements)
	assert.Equal(t, 4.0, stats.AverageRating)
	// 1*5 + 1*10 + 0*15 + 4*10 = 55
	assert.Equal(t, 55, stats.OverallScore)
	require.Len(t, stats.RoleScores, 4)
	assert.Equal(t, 55, stats.RoleScores["teacher"])
	assert.Equal(t, 0, stats.RoleScores["dj"])
}

func TestUserProfile(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	user := createTestUser(t, srv.DB, "profile@example.com", "Perfil", "Propio", 10)
	token := getJWTToken(t, srv, user.Email)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var fetched models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, user.ID, fetched.ID)
	assert.Equal(t, "Perfil", fetched.FirstName)

	// Update years of experience through the profile endpoint
	update := map[string]interface{}{"years_of_experience": 12}
	body, _ := json.Marshal(update)
	req = httptest.NewRequest(http.MethodPut, "/api/auth/update-profile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var updated models.User
	require.NoError(t, srv.DB.Where("id = ?", user.ID).First(&updated).Error)
	assert.Equal(t, 12, updated.YearsOfExperience)
}
