package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// User is the peripheral password-login record, grounded in
// auth-service/backend/internal/user/user.go.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// UserStore is the narrow persistence surface the login/register
// handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, username string, passwordHash []byte) (string, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}

// MySQLUserStore implements UserStore over database/sql + go-sql-driver/mysql,
// matching the corpus exactly rather than folding this into the gorm
// store used for documents/snapshots: this table belongs to a
// conceptually separate bounded context (accounts, not documents) and
// the corpus keeps the two stores apart too.
type MySQLUserStore struct {
	db *sql.DB
}

func NewMySQLUserStore(db *sql.DB) *MySQLUserStore {
	return &MySQLUserStore{db: db}
}

func (s *MySQLUserStore) CreateUser(ctx context.Context, username string, passwordHash []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const query = `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	res, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return "", ErrUsernameTaken
		}
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return formatUserID(id), nil
}

func (s *MySQLUserStore) GetByUsername(ctx context.Context, username string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const query = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
	var u User
	var id int64
	err := s.db.QueryRowContext(ctx, query, username).Scan(&id, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.ID = formatUserID(id)
	return u, nil
}

func formatUserID(id int64) string {
	return "user-" + strconv.FormatInt(id, 10)
}

// HashPassword wraps bcrypt.GenerateFromPassword at the default cost.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// VerifyPassword wraps bcrypt.CompareHashAndPassword.
func VerifyPassword(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
