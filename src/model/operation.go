package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	OperationIncome   = "income"
	OperationExpense  = "expense"
	OperationTransfer = "transfer"
)

func ValidOperationType(t string) bool {
	return t == OperationIncome || t == OperationExpense || t == OperationTransfer
}

// Operation is a manually recorded money movement. Transfers reference both
// accounts; income and expense use one side only.
type Operation struct {
	ID               string    `json:"id"`
	OperationType    string    `json:"operationType"`
	Amount           string    `json:"amount"`
	EntityID         string    `json:"entityId"`
	FromAccountID    string    `json:"fromAccountId,omitempty"`
	ToAccountID      string    `json:"toAccountId,omitempty"`
	ExpenseTypeID    string    `json:"expenseTypeId,omitempty"`
	ExpenseArticleID string    `json:"expenseArticleId,omitempty"`
	OrderNumber      string    `json:"orderNumber,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	UserID           string    `json:"userId"`
	CreatedAt        time.Time `json:"createdAt"`
}

func CreateOperation(db *sql.DB, op *Operation) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO operations (id, operation_type, amount, entity_id, from_account_id, to_account_id, expense_type_id, expense_article_id, order_number, comment, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.OperationType, op.Amount, op.EntityID,
		nullIfEmpty(op.FromAccountID), nullIfEmpty(op.ToAccountID),
		nullIfEmpty(op.ExpenseTypeID), nullIfEmpty(op.ExpenseArticleID),
		nullIfEmpty(op.OrderNumber), nullIfEmpty(op.Comment),
		op.UserID, op.CreatedAt,
	)
	return err
}

const operationColumns = `id, operation_type, amount, entity_id, from_account_id, to_account_id, expense_type_id, expense_article_id, order_number, comment, user_id, created_at`

func scanOperation(scan func(dest ...interface{}) error) (*Operation, error) {
	var op Operation
	var fromAcc, toAcc, expType, expArticle, orderNum, comment sql.NullString
	err := scan(&op.ID, &op.OperationType, &op.Amount, &op.EntityID,
		&fromAcc, &toAcc, &expType, &expArticle, &orderNum, &comment,
		&op.UserID, &op.CreatedAt)
	if err != nil {
		return nil, err
	}
	op.FromAccountID = fromAcc.String
	op.ToAccountID = toAcc.String
	op.ExpenseTypeID = expType.String
	op.ExpenseArticleID = expArticle.String
	op.OrderNumber = orderNum.String
	op.Comment = comment.String
	return &op, nil
}

func GetOperationByID(db *sql.DB, id string) (*Operation, error) {
	row := db.QueryRow(`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	return scanOperation(row.Scan)
}

// OperationFilter narrows ListOperations. Empty fields are ignored;
// Limit 0 means no limit.
type OperationFilter struct {
	OperationType string
	AccountID     string
	ExpenseTypeID string
	DateFrom      time.Time
	DateTo        time.Time
	Limit         int
	Offset        int
}

// ListOperations returns the entity's operations newest first.
func ListOperations(db *sql.DB, entityID string, f OperationFilter) ([]Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE entity_id = ?`
	args := []interface{}{entityID}

	if f.OperationType != "" {
		query += ` AND operation_type = ?`
		args = append(args, f.OperationType)
	}
	if f.AccountID != "" {
		query += ` AND (from_account_id = ? OR to_account_id = ?)`
		args = append(args, f.AccountID, f.AccountID)
	}
	if f.ExpenseTypeID != "" {
		query += ` AND expense_type_id = ?`
		args = append(args, f.ExpenseTypeID)
	}
	if !f.DateFrom.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.DateTo)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []Operation{}
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

func (op *Operation) Update(db *sql.DB) error {
	_, err := db.Exec(
		`UPDATE operations SET operation_type = ?, amount = ?, from_account_id = ?, to_account_id = ?, expense_type_id = ?, expense_article_id = ?, order_number = ?, comment = ? WHERE id = ?`,
		op.OperationType, op.Amount,
		nullIfEmpty(op.FromAccountID), nullIfEmpty(op.ToAccountID),
		nullIfEmpty(op.ExpenseTypeID), nullIfEmpty(op.ExpenseArticleID),
		nullIfEmpty(op.OrderNumber), nullIfEmpty(op.Comment),
		op.ID,
	)
	return err
}

func DeleteOperation(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM operations WHERE id = ?`, id)
	return err
}

// OperationTemplate pre-fills the operation form with a saved set of fields.
type OperationTemplate struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OperationType    string    `json:"operationType"`
	EntityID         string    `json:"entityId"`
	FromAccountID    string    `json:"fromAccountId,omitempty"`
	ToAccountID      string    `json:"toAccountId,omitempty"`
	ExpenseTypeID    string    `json:"expenseTypeId,omitempty"`
	ExpenseArticleID string    `json:"expenseArticleId,omitempty"`
	UserID           string    `json:"userId"`
	CreatedAt        time.Time `json:"createdAt"`
}

func CreateOperationTemplate(db *sql.DB, t *OperationTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO operation_templates (id, name, operation_type, entity_id, from_account_id, to_account_id, expense_type_id, expense_article_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.OperationType, t.EntityID,
		nullIfEmpty(t.FromAccountID), nullIfEmpty(t.ToAccountID),
		nullIfEmpty(t.ExpenseTypeID), nullIfEmpty(t.ExpenseArticleID),
		t.UserID, t.CreatedAt,
	)
	return err
}

func ListOperationTemplates(db *sql.DB, entityID string) ([]OperationTemplate, error) {
	rows, err := db.Query(
		`SELECT id, name, operation_type, entity_id, from_account_id, to_account_id, expense_type_id, expense_article_id, user_id, created_at
		 FROM operation_templates WHERE entity_id = ? ORDER BY name ASC`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []OperationTemplate{}
	for rows.Next() {
		var t OperationTemplate
		var fromAcc, toAcc, expType, expArticle sql.NullString
		err := rows.Scan(&t.ID, &t.Name, &t.OperationType, &t.EntityID,
			&fromAcc, &toAcc, &expType, &expArticle, &t.UserID, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		t.FromAccountID = fromAcc.String
		t.ToAccountID = toAcc.String
		t.ExpenseTypeID = expType.String
		t.ExpenseArticleID = expArticle.String
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func GetOperationTemplateByID(db *sql.DB, id string) (*OperationTemplate, error) {
	var t OperationTemplate
	var fromAcc, toAcc, expType, expArticle sql.NullString
	err := db.QueryRow(
		`SELECT id, name, operation_type, entity_id, from_account_id, to_account_id, expense_type_id, expense_article_id, user_id, created_at
		 FROM operation_templates WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Name, &t.OperationType, &t.EntityID,
		&fromAcc, &toAcc, &expType, &expArticle, &t.UserID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.FromAccountID = fromAcc.String
	t.ToAccountID = toAcc.String
	t.ExpenseTypeID = expType.String
	t.ExpenseArticleID = expArticle.String
	return &t, nil
}

func (t *OperationTemplate) Update(db *sql.DB) error {
	_, err := db.Exec(
		`UPDATE operation_templates
		 SET name = ?, operation_type = ?, from_account_id = ?, to_account_id = ?, expense_type_id = ?, expense_article_id = ?
		 WHERE id = ?`,
		t.Name, t.OperationType,
		nullIfEmpty(t.FromAccountID), nullIfEmpty(t.ToAccountID),
		nullIfEmpty(t.ExpenseTypeID), nullIfEmpty(t.ExpenseArticleID),
		t.ID,
	)
	return err
}

func DeleteOperationTemplate(db *sql.DB, id, entityID string) error {
	res, err := db.Exec(`DELETE FROM operation_templates WHERE id = ? AND entity_id = ?`, id, entityID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
