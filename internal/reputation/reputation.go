package reputation

import (
	"errors"
	"math"
	"sort"

	"tangohub-backend/internal/models"

	"gorm.io/gorm"
)

// Score formula weights. The reputation score is
// min(100, total*5 + unique endorsers*10 + verified*15 + average rating*10),
// rounded to the nearest integer.
const (
	weightTotal    = 5
	weightUnique   = 10
	weightVerified = 15
	weightRating   = 10
	maxScore       = 100

	// TopSkillsPerRole is the default top-skill list length on the résumé
	TopSkillsPerRole = 5
	// HighlightedSkillsLimit caps the cross-role highlighted skills list
	HighlightedSkillsLimit = 8
)

// Stats summarizes a user's received endorsements
type Stats struct {
	TotalEndorsements    int     `json:"total_endorsements"`
	UniqueEndorsers      int     `json:"unique_endorsers"`
	VerifiedEndorsements int     `json:"verified_endorsements"`
	AverageRating        float64 `json:"average_rating"`
}

// SkillCount is a skill with the number of endorsements mentioning it
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

// HighlightedSkill is a (role, skill) pair ranked across all roles
type HighlightedSkill struct {
	Role  models.TangoRole `json:"role"`
	Skill string           `json:"skill"`
	Count int              `json:"count"`
}

// EndorserIdentity is the public display identity of an endorser
type EndorserIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// RoleResume is the per-role section of the tango résumé
type RoleResume struct {
	Endorsements  int                `json:"endorsements"`
	Score         int                `json:"score"`
	TopSkills     []SkillCount       `json:"top_skills"`
	VerifiedBy    []EndorserIdentity `json:"verified_by"`
	AverageRating float64            `json:"average_rating"`
}

// TangoResume is the aggregated view of a user's endorsements across all roles
type TangoResume struct {
	UserID               string                          `json:"user_id"`
	Roles                map[models.TangoRole]RoleResume `json:"roles"`
	OverallScore         int                             `json:"overall_score"`
	TotalEndorsements    int                             `json:"total_endorsements"`
	UniqueEndorsers      int                             `json:"unique_endorsers"`
	VerifiedEndorsements int                             `json:"verified_endorsements"`
	AverageRating        float64                         `json:"average_rating"`
	YearsOfExperience    int                             `json:"years_of_experience"`
	HighlightedSkills    []HighlightedSkill              `json:"highlighted_skills"`
}

// CreateEndorsementInput carries the endorsement fields supplied by the endorser
type CreateEndorsementInput struct {
	EndorseeID string
	Role       models.TangoRole
	SkillType  string
	Rating     *int
	Comment    string
}

// Service computes reputation scores and résumés from the endorsement store.
// All derived values are recomputed from current rows on every call; nothing
// is cached or materialized.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateEndorsement validates and stores a new endorsement, snapshotting the
// mutual-endorsement verification flag at creation time. The flag is never
// revisited, even if the reciprocal endorsement is later deleted.
func (s *Service) CreateEndorsement(endorserID string, in CreateEndorsementInput) (*models.Endorsement, error) {
	if endorserID == in.EndorseeID {
		return nil, ErrSelfEndorsement
	}
	if !in.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, ErrInvalidRating
	}

	exists, err := models.EndorsementExists(s.db, endorserID, in.EndorseeID, in.Role, in.SkillType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEndorsement
	}

	verified, err := s.ShouldVerifyEndorsement(endorserID, in.EndorseeID)
	if err != nil {
		return nil, err
	}

	endorsement := &models.Endorsement{
		EndorserID: endorserID,
		EndorseeID: in.EndorseeID,
		Role:       in.Role,
		SkillType:  in.SkillType,
		Rating:     in.Rating,
		Comment:    in.Comment,
		IsVerified: verified,
	}

	if err := s.db.Create(endorsement).Error; err != nil {
		// The composite unique index is the backstop for two identical
		// creations racing past the existence check above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEndorsement
		}
		return nil, err
	}

	return endorsement, nil
}

// DeleteEndorsement removes an endorsement on behalf of its original endorser.
// A missing row and a row owned by someone else are both ErrEndorsementNotFound.
func (s *Service) DeleteEndorsement(endorsementID, requesterID string) error {
	affected, err := models.DeleteEndorsementByOwner(s.db, endorsementID, requesterID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEndorsementNotFound
	}
	return nil
}

// ListEndorsements returns a user's received endorsements newest first,
// joined with endorser display identity. Role is optional.
func (s *Service) ListEndorsements(userID string, role *models.TangoRole) ([]models.EndorsementWithEndorser, error) {
	return models.ListEndorsementsWithEndorser(s.db, userID, role)
}

// ShouldVerifyEndorsement reports whether an endorsement from endorserID to
// endorseeID counts as verified: the endorsee must already have endorsed the
// endorser back, in any role or skill.
func (s *Service) ShouldVerifyEndorsement(endorserID, endorseeID string) (bool, error) {
	return models.HasEndorsementFrom(s.db, endorseeID, endorserID)
}

// CalculateReputationScore computes the 0-100 overall score for a user
func (s *Service) CalculateReputationScore(userID string) (int, error) {
	endorsements, err := models.GetEndorsementsForUser(s.db, userID)
	if err != nil {
		return 0, err
	}

	total, unique, verified, ratingSum := tally(endorsements)
	// Empty set: denominator treated as 1 so the average contributes 0
	denominator := total
	if denominator == 0 {
		denominator = 1
	}
	average := ratingSum / float64(denominator)

	return scoreFrom(total, unique, verified, average), nil
}

// CalculateRoleScore computes the 0-100 score for a user restricted to one role.
// A user with no endorsements in the role scores 0.
func (s *Service) CalculateRoleScore(userID string, role models.TangoRole) (int, error) {
	endorsements, err := models.GetEndorsementsForUserRole(s.db, userID, role)
	if err != nil {
		return 0, err
	}
	if len(endorsements) == 0 {
		return 0, nil
	}

	total, unique, verified, ratingSum := tally(endorsements)
	average := ratingSum / float64(total)

	return scoreFrom(total, unique, verified, average), nil
}

// GetEndorsementStats aggregates a user's endorsements in a single pass
func (s *Service) GetEndorsementStats(userID string) (*Stats, error) {
	endorsements, err := models.GetEndorsementsForUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	total, unique, verified, ratingSum := tally(endorsements)
	denominator := total
	if denominator == 0 {
		denominator = 1
	}

	return &Stats{
		TotalEndorsements:    total,
		UniqueEndorsers:      unique,
		VerifiedEndorsements: verified,
		AverageRating:        round1(ratingSum / float64(denominator)),
	}, nil
}

// GetTopSkillsForRole counts skill mentions within one role, most endorsed
// first. Ties keep the order skills were first encountered in.
func (s *Service) GetTopSkillsForRole(userID string, role models.TangoRole, limit int) ([]SkillCount, error) {
	endorsements, err := models.GetEndorsementsForUserRole(s.db, userID, role)
	if err != nil {
		return nil, err
	}

	skills := countSkills(endorsements)
	if len(skills) > limit {
		skills = skills[:limit]
	}
	return skills, nil
}

// GetVerifiedEndorsers returns the display identity of everyone whose
// endorsement of the user for this role is verified, in store return order.
func (s *Service) GetVerifiedEndorsers(userID string, role models.TangoRole) ([]EndorserIdentity, error) {
	endorsements, err := models.GetVerifiedEndorsementsForRole(s.db, userID, role)
	if err != nil {
		return nil, err
	}

	index, err := models.GetEndorserIndex(s.db, endorsements)
	if err != nil {
		return nil, err
	}

	endorsers := make([]EndorserIdentity, 0, len(endorsements))
	for _, e := range endorsements {
		identity := EndorserIdentity{UserID: e.EndorserID}
		if u, ok := index[e.EndorserID]; ok {
			identity.DisplayName = u.GetDisplayName()
			identity.AvatarURL = u.AvatarURL
		}
		endorsers = append(endorsers, identity)
	}
	return endorsers, nil
}

// GetTangoResume assembles the full professional résumé for a user: one
// breakdown per fixed role, overall stats and score, profile years of
// experience and the cross-role highlighted skills.
func (s *Service) GetTangoResume(userID string) (*TangoResume, error) {
	resume := &TangoResume{
		UserID: userID,
		Roles:  make(map[models.TangoRole]RoleResume, len(models.TangoRoles)),
	}

	type roleSkill struct {
		role  models.TangoRole
		skill string
	}
	skillCounts := make(map[roleSkill]int)
	var skillOrder []roleSkill

	for _, role := range models.TangoRoles {
		endorsements, err := models.GetEndorsementsForUserRole(s.db, userID, role)
		if err != nil {
			return nil, err
		}

		topSkills, err := s.GetTopSkillsForRole(userID, role, TopSkillsPerRole)
		if err != nil {
			return nil, err
		}

		verifiedBy, err := s.GetVerifiedEndorsers(userID, role)
		if err != nil {
			return nil, err
		}

		total, unique, verified, ratingSum := tally(endorsements)
		score := 0
		average := 0.0
		if total > 0 {
			average = ratingSum / float64(total)
			score = scoreFrom(total, unique, verified, average)
		}

		resume.Roles[role] = RoleResume{
			Endorsements:  total,
			Score:         score,
			TopSkills:     topSkills,
			VerifiedBy:    verifiedBy,
			AverageRating: round1(average),
		}

		for _, e := range endorsements {
			if e.SkillType == "" {
				continue
			}
			key := roleSkill{role: role, skill: e.SkillType}
			if skillCounts[key] == 0 {
				skillOrder = append(skillOrder, key)
			}
			skillCounts[key]++
		}
	}

	stats, err := s.GetEndorsementStats(userID)
	if err != nil {
		return nil, err
	}
	resume.TotalEndorsements = stats.TotalEndorsements
	resume.UniqueEndorsers = stats.UniqueEndorsers
	resume.VerifiedEndorsements = stats.VerifiedEndorsements
	resume.AverageRating = stats.AverageRating

	overall, err := s.CalculateReputationScore(userID)
	if err != nil {
		return nil, err
	}
	resume.OverallScore = overall

	// Profile lookup for years of experience; a missing profile leaves it at 0
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		resume.YearsOfExperience = user.YearsOfExperience
	}

	highlighted := make([]HighlightedSkill, 0, len(skillOrder))
	for _, key := range skillOrder {
		highlighted = append(highlighted, HighlightedSkill{
			Role:  key.role,
			Skill: key.skill,
			Count: skillCounts[key],
		})
	}
	sort.SliceStable(highlighted, func(i, j int) bool {
		return highlighted[i].Count > highlighted[j].Count
	})
	if len(highlighted) > HighlightedSkillsLimit {
		highlighted = highlighted[:HighlightedSkillsLimit]
	}
	resume.HighlightedSkills = highlighted

	return resume, nil
}

// tally walks the endorsement set once, producing the formula inputs.
// Endorsements without a rating contribute 0 to the rating sum.
func tally(endorsements []models.Endorsement) (total, unique, verified int, ratingSum float64) {
	endorsers := make(map[string]bool, len(endorsements))
	for _, e := range endorsements {
		total++
		endorsers[e.EndorserID] = true
		if e.IsVerified {
			verified++
		}
		if e.Rating != nil {
			ratingSum += float64(*e.Rating)
		}
	}
	unique = len(endorsers)
	return
}

// scoreFrom applies the weighted formula, rounds to the nearest integer and
// caps at 100 no matter how large the weighted sum grows.
func scoreFrom(total, unique, verified int, averageRating float64) int {
	raw := float64(total)*weightTotal +
		float64(unique)*weightUnique +
		float64(verified)*weightVerified +
		averageRating*weightRating
	score := int(math.Round(raw))
	if score > maxScore {
		return maxScore
	}
	return score
}

// round1 rounds to one decimal place for reported averages
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// countSkills counts skill mentions, sorted by count descending with ties in
// first-encounter order. Endorsements without a skill are excluded.
func countSkills(endorsements []models.Endorsement) []SkillCount {
	counts := make(map[string]int)
	var order []string
	for _, e := range endorsements {
		if e.SkillType == "" {
			continue
		}
		if counts[e.SkillType] == 0 {
			order = append(order, e.SkillType)
		}
		counts[e.SkillType]++
	}

	skills := make([]SkillCount, 0, len(order))
	for _, skill := range order {
		skills = append(skills, SkillCount{Skill: skill, Count: counts[skill]})
	}
	sort.SliceStable(skills, func(i, j int) bool {
		return skills[i].Count > skills[j].Count
	})
	return skills
}
