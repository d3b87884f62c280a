// Package store is the credential store: identities and score records kept
// in gorm, with the read-time join that decorates scores with display fields.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UserSummary is the display slice of an identity attached to score views.
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ScoreView is a score joined with its owner. Scores whose owner no longer
// exists never produce a view.
type ScoreView struct {
	ID        uint        `json:"id"`
	GameID    string      `json:"gameId"`
	Score     int64       `json:"score"`
	Timestamp time.Time   `json:"timestamp"`
	User      UserSummary `json:"user"`
}

type scoreRow struct {
	ID          uint
	GameID      string
	Value       int64
	SubmittedAt time.Time
	UserID      uint
	Username    string
	Avatar      string
}

func (r scoreRow) view() ScoreView {
	return ScoreView{
		ID:        r.ID,
		GameID:    r.GameID,
		Score:     r.Value,
		Timestamp: r.SubmittedAt,
		User:      UserSummary{ID: r.UserID, Username: r.Username, Avatar: r.Avatar},
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}
	return err
}

func isForeignKey(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// FindUserByUsername looks the identity up case-insensitively.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username_key = ?", usernameKey(username)).First(&u).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("username_key = ?", usernameKey(username)).Count(&count).Error
	return count > 0, err
}

// CountGuests is used to seed the guest name search.
func (s *Store) CountGuests(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("is_guest = ?", true).Count(&count).Error
	return count, err
}

// CreateUser inserts a new identity. The pre-check only improves the error;
// the unique index on username_key is what prevents concurrent duplicates.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.UsernameKey = usernameKey(u.Username)
	taken, err := s.UsernameTaken(ctx, u.Username)
	if err != nil {
		return err
	}
	if taken {
		return apperr.ErrDuplicateIdentity
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return apperr.ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

func (s *Store) UpdateAvatar(ctx context.Context, id uint, avatar string) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("avatar", avatar)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	return s.FindUserByID(ctx, id)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ? AND is_guest = ?", id, false).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	return nil
}

// DeleteUser removes the identity and every score it owns in one
// transaction, returning how many scores went with it.
func (s *Store) DeleteUser(ctx context.Context, id uint) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", id).Delete(&models.Score{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		res = tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: user", apperr.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CreateScore persists a score and returns it joined with its owner. An
// owner deleted since it was looked up yields NotFound and no row.
func (s *Store) CreateScore(ctx context.Context, sc *models.Score) (*ScoreView, error) {
	if sc.SubmittedAt.IsZero() {
		sc.SubmittedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(sc).Error; err != nil {
		switch {
		case isForeignKey(err):
			return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, sc.UserID)
		case isDuplicate(err):
			return nil, apperr.ErrConflict
		}
		return nil, err
	}
	return s.FindScoreView(ctx, sc.ID)
}

func (s *Store) scoreViews(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("scores").
		Select("scores.id, scores.game_id, scores.value, scores.submitted_at, users.id AS user_id, users.username, users.avatar").
		Joins("JOIN users ON users.id = scores.user_id")
}

func (s *Store) FindScoreView(ctx context.Context, id uint) (*ScoreView, error) {
	var rows []scoreRow
	if err := s.scoreViews(ctx).Where("scores.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: score", apperr.ErrNotFound)
	}
	v := rows[0].view()
	return &v, nil
}

// TopScores returns the best scores of a game, highest first, earlier
// submissions winning ties. Scores of deleted identities are excluded by the
// inner join.
func (s *Store) TopScores(ctx context.Context, gameID string, limit int) ([]ScoreView, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var rows []scoreRow
	err := s.scoreViews(ctx).
		Where("scores.game_id = ?", gameID).
		Order("scores.value DESC").Order("scores.submitted_at ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ScoreView, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.view())
	}
	return out, nil
}

// ScoresByUser lists an identity's scores, newest first.
func (s *Store) ScoresByUser(ctx context.Context, userID uint) ([]models.Score, error) {
	var scores []models.Score
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("submitted_at DESC").Order("id DESC").Find(&scores).Error
	return scores, err
}

func (s *Store) countScores(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Score{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
