package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TangoRole is the professional category an endorsement applies to
type TangoRole string

const (
	RoleTeacher   TangoRole = "teacher"
	RoleDJ        TangoRole = "dj"
	RoleOrganizer TangoRole = "organizer"
	RolePerformer TangoRole = "performer"
)

// TangoRoles lists every role in a fixed order, used for résumé assembly
var TangoRoles = []TangoRole{RoleTeacher, RoleDJ, RoleOrganizer, RolePerformer}

// IsValid reports whether the role is one of the fixed enumeration
func (r TangoRole) IsValid() bool {
	switch r {
	case RoleTeacher, RoleDJ, RoleOrganizer, RolePerformer:
		return true
	}
	return false
}

// Endorsement is a directed attestation that one user vouches for another
// in a specific role, optionally for a specific skill.
// The (endorser, endorsee, role, skill_type) tuple is unique at the schema
// level; the application-level existence check only exists for a friendlier
// conflict message.
type Endorsement struct {
	ID         string    `json:"id" gorm:"unique;not null"`
	EndorserID string    `gorm:"not null;index;uniqueIndex:idx_endorsement_tuple" json:"endorser_id" validate:"required"`
	EndorseeID string    `gorm:"not null;index;uniqueIndex:idx_endorsement_tuple" json:"endorsee_id" validate:"required"`
	Role       TangoRole `gorm:"type:varchar(20);not null;uniqueIndex:idx_endorsement_tuple" json:"tango_role" validate:"required"`
	// Empty string means the endorsement covers the role as a whole
	SkillType string `gorm:"type:varchar(100);uniqueIndex:idx_endorsement_tuple" json:"skill_type,omitempty"`
	Rating    *int   `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment   string `json:"comment,omitempty"`
	// Snapshot of mutual endorsement at creation time, never recomputed
	IsVerified bool      `gorm:"default:false" json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *Endorsement) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	e.ID = uuidV7.String()
	return
}

// GetEndorsementsForUser retrieves every endorsement received by a user
func GetEndorsementsForUser(db *gorm.DB, endorseeID string) ([]Endorsement, error) {
	var endorsements []Endorsement
	if err := db.Where("endorsee_id = ?", endorseeID).Find(&endorsements).Error; err != nil {
		return nil, err
	}
	return endorsements, nil
}

// GetEndorsementsForUserRole retrieves the endorsements received by a user for one role
func GetEndorsementsForUserRole(db *gorm.DB, endorseeID string, role TangoRole) ([]Endorsement, error) {
	var endorsements []Endorsement
	if err := db.Where("endorsee_id = ? AND role = ?", endorseeID, role).Find(&endorsements).Error; err != nil {
		return nil, err
	}
	return endorsements, nil
}

// EndorsementExists checks whether the exact (endorser, endorsee, role, skill) tuple is already present
func EndorsementExists(db *gorm.DB, endorserID, endorseeID string, role TangoRole, skillType string) (bool, error) {
	var count int64
	err := db.Model(&Endorsement{}).
		Where("endorser_id = ? AND endorsee_id = ? AND role = ? AND skill_type = ?", endorserID, endorseeID, role, skillType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasEndorsementFrom checks whether endorserID has endorsed endorseeID in any role/skill.
// Used for the mutual-endorsement verification snapshot.
func HasEndorsementFrom(db *gorm.DB, endorserID, endorseeID string) (bool, error) {
	var count int64
	err := db.Model(&Endorsement{}).
		Where("endorser_id = ? AND endorsee_id = ?", endorserID, endorseeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteEndorsementByOwner deletes an endorsement only when requesterID is its
// original endorser. Ownership is part of the delete predicate, so "not found"
// and "not yours" are indistinguishable to the caller.
func DeleteEndorsementByOwner(db *gorm.DB, endorsementID, requesterID string) (int64, error) {
	result := db.Where("id = ? AND endorser_id = ?", endorsementID, requesterID).Delete(&Endorsement{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GetVerifiedEndorsementsForRole retrieves the verified endorsements a user received for one role
func GetVerifiedEndorsementsForRole(db *gorm.DB, endorseeID string, role TangoRole) ([]Endorsement, error) {
	var endorsements []Endorsement
	if err := db.Where("endorsee_id = ? AND role = ? AND is_verified = ?", endorseeID, role, true).Find(&endorsements).Error; err != nil {
		return nil, err
	}
	return endorsements, nil
}

// EndorsementWithEndorser is an endorsement joined with the endorser's display identity
type EndorsementWithEndorser struct {
	Endorsement
	EndorserName      string `json:"endorser_name"`
	EndorserAvatarURL string `json:"endorser_avatar_url"`
}

// ListEndorsementsWithEndorser returns a user's endorsements newest first,
// joined with each endorser's display name and avatar. Role is optional.
func ListEndorsementsWithEndorser(db *gorm.DB, endorseeID string, role *TangoRole) ([]EndorsementWithEndorser, error) {
	var endorsements []Endorsement
	query := db.Where("endorsee_id = ?", endorseeID)
	if role != nil {
		query = query.Where("role = ?", *role)
	}
	if err := query.Order("created_at DESC").Find(&endorsements).Error; err != nil {
		return nil, err
	}

	endorsers, err := GetEndorserIndex(db, endorsements)
	if err != nil {
		return nil, err
	}

	joined := make([]EndorsementWithEndorser, len(endorsements))
	for i, e := range endorsements {
		joined[i] = EndorsementWithEndorser{Endorsement: e}
		if u, ok := endorsers[e.EndorserID]; ok {
			joined[i].EndorserName = u.GetDisplayName()
			joined[i].EndorserAvatarURL = u.AvatarURL
		}
	}

	return joined, nil
}

// GetEndorserIndex loads the display identity of every distinct endorser in the slice
func GetEndorserIndex(db *gorm.DB, endorsements []Endorsement) (map[string]User, error) {
	ids := make([]string, 0, len(endorsements))
	seen := make(map[string]bool, len(endorsements))
	for _, e := range endorsements {
		if !seen[e.EndorserID] {
			seen[e.EndorserID] = true
			ids = append(ids, e.EndorserID)
		}
	}

	index := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return index, nil
	}

	var users []User
	if err := db.Select("id, first_name, last_name, avatar_url").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		index[u.ID] = u
	}
	return index, nil
}
