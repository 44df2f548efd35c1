package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/database"
)

const (
	identityColumns = `id, email, password_hash, google_subject, disabled, last_login, created_at, updated_at`
	profileColumns  = `id, email, full_name, role, office, avatar_url, org_unit_id, created_at, updated_at`
)

// UserRepository stores sign-in identities and portal profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindIdentityByEmail returns the sign-in identity for an email address.
func (r *UserRepository) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM auth_identities WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return &identity, nil
}

// FindIdentityByID returns the sign-in identity by user id.
func (r *UserRepository) FindIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM auth_identities WHERE id = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return &identity, nil
}

// FindIdentityByGoogleSubject returns the identity linked to a Google account.
func (r *UserRepository) FindIdentityByGoogleSubject(ctx context.Context, subject string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM auth_identities WHERE google_subject = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by google subject: %w", err)
	}
	return &identity, nil
}

// LinkGoogleSubject attaches a Google account to an existing identity.
func (r *UserRepository) LinkGoogleSubject(ctx context.Context, id, subject string, at time.Time) error {
	const query = `UPDATE auth_identities SET google_subject = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, subject, at); err != nil {
		return fmt.Errorf("link google subject: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for an identity.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE auth_identities SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// CredentialChanges lists the sign-in fields to overwrite; nil fields are kept.
type CredentialChanges struct {
	Email        *string
	PasswordHash *string
}

// UpdateCredentials rewrites email and/or password hash. A new email is
// mirrored onto the profile in the same transaction.
func (r *UserRepository) UpdateCredentials(ctx context.Context, id string, changes CredentialChanges, at time.Time) error {
	if changes.Email == nil && changes.PasswordHash == nil {
		return nil
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		set := []string{"updated_at = $2"}
		args := []interface{}{id, at}
		if changes.Email != nil {
			args = append(args, *changes.Email)
			set = append(set, fmt.Sprintf("email = $%d", len(args)))
		}
		if changes.PasswordHash != nil {
			args = append(args, *changes.PasswordHash)
			set = append(set, fmt.Sprintf("password_hash = $%d", len(args)))
		}
		query := fmt.Sprintf("UPDATE auth_identities SET %s WHERE id = $1", strings.Join(set, ", "))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("update identity credentials: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return sql.ErrNoRows
		}
		if changes.Email != nil {
			const profileQuery = `UPDATE user_profiles SET email = $2, updated_at = $3 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, profileQuery, id, *changes.Email, at); err != nil {
				return fmt.Errorf("update profile email: %w", err)
			}
		}
		return nil
	})
}

// CreateUser inserts an identity and its profile atomically.
func (r *UserRepository) CreateUser(ctx context.Context, identity *models.Identity, profile *models.UserProfile) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = identity.CreatedAt
	profile.ID = identity.ID
	profile.Email = identity.Email
	profile.CreatedAt = identity.CreatedAt
	profile.UpdatedAt = identity.CreatedAt

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const identityQuery = `INSERT INTO auth_identities (id, email, password_hash, google_subject, disabled, created_at, updated_at) VALUES (:id, :email, :password_hash, :google_subject, :disabled, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, identityQuery, identity); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("create identity: %w", err)
		}
		const profileQuery = `INSERT INTO user_profiles (id, email, full_name, role, office, avatar_url, org_unit_id, created_at, updated_at) VALUES (:id, :email, :full_name, :role, :office, :avatar_url, :org_unit_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, profileQuery, profile); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
}

// FindProfile returns an active profile.
func (r *UserRepository) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE id = $1 LIMIT 1`
	var profile models.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &profile, nil
}

// FindProfiles returns the active profiles among ids, in no particular order.
func (r *UserRepository) FindProfiles(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return []models.UserProfile{}, nil
	}
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE id = ANY($1)`
	var profiles []models.UserProfile
	if err := r.db.SelectContext(ctx, &profiles, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	return profiles, nil
}

// ListIDsByRole returns profile ids of a role ordered by name, used for bulk participant toggles.
func (r *UserRepository) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	const query = `SELECT id FROM user_profiles WHERE role = $1 ORDER BY full_name ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, role); err != nil {
		return nil, fmt.Errorf("list user ids by role: %w", err)
	}
	return ids, nil
}

// CountByRole returns active profile counts keyed by role.
func (r *UserRepository) CountByRole(ctx context.Context) (map[models.UserRole]int, error) {
	const query = `SELECT role, COUNT(*) AS total FROM user_profiles GROUP BY role`
	var rows []struct {
		Role  models.UserRole `db:"role"`
		Total int             `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	out := make(map[models.UserRole]int, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Total
	}
	return out, nil
}

// List returns profiles based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.UserProfile, int, error) {
	baseQuery := `FROM user_profiles WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d OR LOWER(office) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"created_at": true,
		"full_name":  true,
		"office":     true,
		"role":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "full_name"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", profileColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var profiles []models.UserProfile
	if err := r.db.SelectContext(ctx, &profiles, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return profiles, total, nil
}

// UpdateAvatar stores the public URL of the user's avatar.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id, url string, at time.Time) error {
	const query = `UPDATE user_profiles SET avatar_url = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, url, at)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Disable turns off sign-in for the identity and relocates its profile to
// deleted_user_profiles, stamped with who removed it and when.
func (r *UserRepository) Disable(ctx context.Context, id, deletedBy string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const disableQuery = `UPDATE auth_identities SET disabled = TRUE, updated_at = $2 WHERE id = $1`
		res, err := tx.ExecContext(ctx, disableQuery, id, at)
		if err != nil {
			return fmt.Errorf("disable identity: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return sql.ErrNoRows
		}
		const moveQuery = `INSERT INTO deleted_user_profiles (id, email, full_name, role, office, avatar_url, org_unit_id, created_at, updated_at, deleted_at, deleted_by)
SELECT id, email, full_name, role, office, avatar_url, org_unit_id, created_at, updated_at, $2, $3 FROM user_profiles WHERE id = $1
ON CONFLICT (id) DO UPDATE SET deleted_at = EXCLUDED.deleted_at, deleted_by = EXCLUDED.deleted_by`
		if _, err := tx.ExecContext(ctx, moveQuery, id, at, deletedBy); err != nil {
			return fmt.Errorf("archive profile: %w", err)
		}
		const deleteQuery = `DELETE FROM user_profiles WHERE id = $1`
		if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
			return fmt.Errorf("remove profile: %w", err)
		}
		return nil
	})
}

// DeletePermanently removes the identity together with any profile copies.
func (r *UserRepository) DeletePermanently(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, query := range []string{
			`DELETE FROM user_profiles WHERE id = $1`,
			`DELETE FROM deleted_user_profiles WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM auth_identities WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete identity: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
