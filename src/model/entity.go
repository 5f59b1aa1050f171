package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entity is a tracked company/legal unit owning accounts and operations.
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func CreateEntity(db *sql.DB, name, ownerID string) (*Entity, error) {
	now := time.Now()
	e := &Entity{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.Exec(
		`INSERT INTO entities (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.OwnerID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func GetEntityByID(db *sql.DB, id string) (*Entity, error) {
	row := db.QueryRow(`SELECT id, name, owner_id, created_at, updated_at FROM entities WHERE id = ?`, id)
	var e Entity
	err := row.Scan(&e.ID, &e.Name, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &e, nil
}

// ListEntitiesForUser returns the entities a user can see: all of the owner's
// entities for owners, only granted ones for employees.
func ListEntitiesForUser(db *sql.DB, user *User) ([]Entity, error) {
	var rows *sql.Rows
	var err error
	if user.Role == RoleEmployee {
		rows, err = db.Query(`
			SELECT e.id, e.name, e.owner_id, e.created_at, e.updated_at
			FROM entities e
			JOIN entity_access ea ON ea.entity_id = e.id
			WHERE ea.user_id = ?
			ORDER BY e.created_at ASC`, user.ID)
	} else {
		rows, err = db.Query(`
			SELECT id, name, owner_id, created_at, updated_at
			FROM entities
			WHERE owner_id = ?
			ORDER BY created_at ASC`, user.ID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if entities == nil {
		entities = []Entity{}
	}
	return entities, rows.Err()
}

// UserCanAccessEntity reports whether the user may read/write data under the entity.
// Owners must own it; employees need an entity_access grant.
func UserCanAccessEntity(db *sql.DB, user *User, entityID string) (bool, error) {
	entity, err := GetEntityByID(db, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if user.Role == RoleEmployee {
		if entity.OwnerID != user.OwnerOf() {
			return false, nil
		}
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM entity_access WHERE user_id = ? AND entity_id = ?`, user.ID, entityID).Scan(&n)
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}

	return entity.OwnerID == user.ID, nil
}

func (e *Entity) Update(db *sql.DB, name string) error {
	e.Name = name
	e.UpdatedAt = time.Now()
	_, err := db.Exec(`UPDATE entities SET name = ?, updated_at = ? WHERE id = ?`, e.Name, e.UpdatedAt, e.ID)
	return err
}

func DeleteEntity(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM entities WHERE id = ?`, id)
	return err
}

// --- Entity access grants (employees) ---

func ReplaceEntityAccess(tx *sql.Tx, userID string, entityIDs []string) error {
	if _, err := tx.Exec(`DELETE FROM entity_access WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, entityID := range entityIDs {
		if _, err := tx.Exec(`INSERT INTO entity_access (user_id, entity_id) VALUES (?, ?)`, userID, entityID); err != nil {
			return err
		}
	}
	return nil
}

func ListEntityAccess(db *sql.DB, userID string) ([]Entity, error) {
	rows, err := db.Query(`
		SELECT e.id, e.name, e.owner_id, e.created_at, e.updated_at
		FROM entities e
		JOIN entity_access ea ON ea.entity_id = e.id
		WHERE ea.user_id = ?
		ORDER BY e.name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if entities == nil {
		entities = []Entity{}
	}
	return entities, rows.Err()
}
