package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Language  string    `json:"language"`
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permissions are per-user capability flags. Owners implicitly hold all of them;
// the row only matters for employees.
type Permissions struct {
	Dds       bool `json:"dds"`
	PdfUpload bool `json:"pdfUpload"`
	Analytics bool `json:"analytics"`
	Export    bool `json:"export"`
}

func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

func (u *User) CreateUser(db *sql.DB) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleOwner
	}
	if u.Language == "" {
		u.Language = "ru"
	}
	if u.Theme == "" {
		u.Theme = "dark"
	}

	query := `
	INSERT INTO users (id, email, password, name, role, owner_id, language, theme, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var ownerIDArg interface{}
	if u.OwnerID != "" {
		ownerIDArg = u.OwnerID
	}

	_, err = stmt.Exec(u.ID, u.Email, u.Password, u.Name, u.Role, ownerIDArg, u.Language, u.Theme, u.CreatedAt, u.UpdatedAt)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var ownerID sql.NullString

	err := row.Scan(
		&user.ID, &user.Email, &user.Password, &user.Name, &user.Role,
		&ownerID, &user.Language, &user.Theme, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	user.OwnerID = ownerID.String
	return &user, nil
}

const userColumns = `id, email, password, name, role, owner_id, language, theme, created_at, updated_at`

func GetUserByID(db *sql.DB, id string) (*User, error) {
	row := db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	row := db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// OwnerOf returns the user ID owning this user's data: the user itself for owners,
// the linked owner for employees.
func (u *User) OwnerOf() string {
	if u.Role == RoleEmployee && u.OwnerID != "" {
		return u.OwnerID
	}
	return u.ID
}

func (u *User) UpdateProfile(db *sql.DB, name, language, theme string) error {
	u.UpdatedAt = time.Now()
	if name != "" {
		u.Name = name
	}
	if language != "" {
		u.Language = language
	}
	if theme != "" {
		u.Theme = theme
	}

	query := `UPDATE users SET name = ?, language = ?, theme = ?, updated_at = ? WHERE id = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(u.Name, u.Language, u.Theme, u.UpdatedAt, u.ID)
	return err
}

func (u *User) UpdatePassword(db *sql.DB, newPasswordHash string) error {
	u.Password = newPasswordHash
	u.UpdatedAt = time.Now()

	query := `UPDATE users SET password = ?, updated_at = ? WHERE id = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(u.Password, u.UpdatedAt, u.ID)
	return err
}

func ListEmployeesByOwner(db *sql.DB, ownerID string) ([]User, error) {
	rows, err := db.Query(`SELECT `+userColumns+` FROM users WHERE owner_id = ? AND role = ? ORDER BY created_at`, ownerID, RoleEmployee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var ownerID sql.NullString
		if err := rows.Scan(
			&user.ID, &user.Email, &user.Password, &user.Name, &user.Role,
			&ownerID, &user.Language, &user.Theme, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		user.OwnerID = ownerID.String
		users = append(users, user)
	}
	return users, rows.Err()
}

func DeleteUser(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Permissions ---

func SetPermissions(db *sql.DB, userID string, p Permissions) error {
	query := `
	INSERT INTO permissions (user_id, dds, pdf_upload, analytics, export)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		dds = excluded.dds,
		pdf_upload = excluded.pdf_upload,
		analytics = excluded.analytics,
		export = excluded.export`
	_, err := db.Exec(query, userID, p.Dds, p.PdfUpload, p.Analytics, p.Export)
	return err
}

func GetPermissions(db *sql.DB, userID string) (*Permissions, error) {
	row := db.QueryRow(`SELECT dds, pdf_upload, analytics, export FROM permissions WHERE user_id = ?`, userID)
	var p Permissions
	err := row.Scan(&p.Dds, &p.PdfUpload, &p.Analytics, &p.Export)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &p, nil
}

// --- Sessions ---

type Session struct {
	ID           int       `json:"id"`
	UserID       string    `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func scanSession(row *sql.Row) (*Session, error) {
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	session, err := scanSession(db.QueryRow(query, token, time.Now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return session, nil
}

func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`

	session, err := scanSession(db.QueryRow(query, refreshToken, time.Now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("refresh session not found, expired, or blocked")
		}
		return nil, err
	}
	return session, nil
}

func DeleteSessionByToken(db *sql.DB, token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func DeleteSessionByRefreshToken(db *sql.DB, refreshToken string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE refresh_token = ?`, refreshToken)
	return err
}
