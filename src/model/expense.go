package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExpenseType is a per-entity expense category containing ordered articles.
type ExpenseType struct {
	ID        string           `json:"id"`
	EntityID  string           `json:"entityId"`
	Name      string           `json:"name"`
	SortOrder int              `json:"sortOrder"`
	CreatedAt time.Time        `json:"createdAt"`
	Articles  []ExpenseArticle `json:"articles"`
}

type ExpenseArticle struct {
	ID            string `json:"id"`
	ExpenseTypeID string `json:"expenseTypeId"`
	Name          string `json:"name"`
	SortOrder     int    `json:"sortOrder"`
}

func CreateExpenseType(db *sql.DB, entityID, name string, sortOrder int) (*ExpenseType, error) {
	t := &ExpenseType{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Name:      name,
		SortOrder: sortOrder,
		CreatedAt: time.Now(),
		Articles:  []ExpenseArticle{},
	}
	_, err := db.Exec(
		`INSERT INTO expense_types (id, entity_id, name, sort_order, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.EntityID, t.Name, t.SortOrder, t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func GetExpenseTypeByID(db *sql.DB, id string) (*ExpenseType, error) {
	row := db.QueryRow(`SELECT id, entity_id, name, sort_order, created_at FROM expense_types WHERE id = ?`, id)
	var t ExpenseType
	err := row.Scan(&t.ID, &t.EntityID, &t.Name, &t.SortOrder, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	articles, err := listArticles(db, t.ID)
	if err != nil {
		return nil, err
	}
	t.Articles = articles
	return &t, nil
}

func ListExpenseTypesByEntity(db *sql.DB, entityID string) ([]ExpenseType, error) {
	rows, err := db.Query(
		`SELECT id, entity_id, name, sort_order, created_at FROM expense_types WHERE entity_id = ? ORDER BY sort_order ASC, name ASC`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []ExpenseType
	for rows.Next() {
		var t ExpenseType
		if err := rows.Scan(&t.ID, &t.EntityID, &t.Name, &t.SortOrder, &t.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range types {
		articles, err := listArticles(db, types[i].ID)
		if err != nil {
			return nil, err
		}
		types[i].Articles = articles
	}
	if types == nil {
		types = []ExpenseType{}
	}
	return types, nil
}

func listArticles(db *sql.DB, expenseTypeID string) ([]ExpenseArticle, error) {
	rows, err := db.Query(
		`SELECT id, expense_type_id, name, sort_order FROM expense_articles WHERE expense_type_id = ? ORDER BY sort_order ASC, name ASC`,
		expenseTypeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []ExpenseArticle
	for rows.Next() {
		var a ExpenseArticle
		if err := rows.Scan(&a.ID, &a.ExpenseTypeID, &a.Name, &a.SortOrder); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if articles == nil {
		articles = []ExpenseArticle{}
	}
	return articles, rows.Err()
}

func (t *ExpenseType) Update(db *sql.DB, name string, sortOrder int) error {
	t.Name = name
	t.SortOrder = sortOrder
	_, err := db.Exec(`UPDATE expense_types SET name = ?, sort_order = ? WHERE id = ?`, t.Name, t.SortOrder, t.ID)
	return err
}

func DeleteExpenseType(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM expense_types WHERE id = ?`, id)
	return err
}

func CreateExpenseArticle(db *sql.DB, expenseTypeID, name string, sortOrder int) (*ExpenseArticle, error) {
	a := &ExpenseArticle{
		ID:            uuid.New().String(),
		ExpenseTypeID: expenseTypeID,
		Name:          name,
		SortOrder:     sortOrder,
	}
	_, err := db.Exec(
		`INSERT INTO expense_articles (id, expense_type_id, name, sort_order) VALUES (?, ?, ?, ?)`,
		a.ID, a.ExpenseTypeID, a.Name, a.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func UpdateExpenseArticle(db *sql.DB, id, expenseTypeID, name string, sortOrder int) error {
	res, err := db.Exec(
		`UPDATE expense_articles SET name = ?, sort_order = ? WHERE id = ? AND expense_type_id = ?`,
		name, sortOrder, id, expenseTypeID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func DeleteExpenseArticle(db *sql.DB, id, expenseTypeID string) error {
	res, err := db.Exec(`DELETE FROM expense_articles WHERE id = ? AND expense_type_id = ?`, id, expenseTypeID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
