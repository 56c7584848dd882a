package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelime/bluesender/internal/domain"
)

func TestCreateWithContacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_lists").
		WithArgs(sqlmock.AnyArg(), "user-1", "spring leads", 2, domain.ListProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO contacts").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewListRepo(db)
	list := &domain.ValidationList{UserID: "user-1", Name: "spring leads", Status: domain.ListProcessing}
	err = repo.CreateWithContacts(context.Background(), list, []string{"a@example.com", "b@example.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, list.ID)
	assert.Equal(t, 2, list.TotalEmails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithContactsRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_lists").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO contacts").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := NewListRepo(db)
	list := &domain.ValidationList{UserID: "user-1", Name: "n", Status: domain.ListProcessing}
	err = repo.CreateWithContacts(context.Background(), list, []string{"a@example.com"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewListRepo(db)
	// No SQL expectation: the state machine rejects before touching the DB.
	err = repo.UpdateStatus(context.Background(), "list-1", domain.ListCompleted, domain.ListProcessing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGuardedByCurrentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE validation_lists SET status").
		WithArgs(domain.ListProcessing, "list-1", domain.ListUnvalidated).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewListRepo(db)
	err = repo.UpdateStatus(context.Background(), "list-1", domain.ListUnvalidated, domain.ListProcessing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteWithResults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM validation_lists").
		WithArgs("list-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectExec("INSERT INTO validation_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO validation_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE validation_lists SET").
		WithArgs("list-1", 2, 1, 1, 0, 0, domain.ListCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewListRepo(db)
	err = repo.CompleteWithResults(context.Background(), "list-1", []domain.ValidationResult{
		{Email: "a@example.com", Result: domain.ResultDeliverable, Deliverable: true},
		{Email: "b@example.com", Result: domain.ResultUndeliverable},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteWithResultsDedupesProviderEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM validation_lists").
		WithArgs("list-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	// One upsert per unique address, not per provider entry.
	mock.ExpectExec("INSERT INTO validation_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO validation_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// processed counts unique addresses; the duplicate's last verdict wins.
	mock.ExpectExec("UPDATE validation_lists SET").
		WithArgs("list-1", 2, 1, 1, 0, 0, domain.ListCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewListRepo(db)
	err = repo.CompleteWithResults(context.Background(), "list-1", []domain.ValidationResult{
		{Email: "a@example.com", Result: domain.ResultDeliverable, Deliverable: true},
		{Email: "b@example.com", Result: domain.ResultDeliverable, Deliverable: true},
		{Email: "a@example.com", Result: domain.ResultUndeliverable, Reason: "invalid_mailbox"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteWithResultsNoOpWhenAlreadyCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM validation_lists").
		WithArgs("list-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	repo := NewListRepo(db)
	err = repo.CompleteWithResults(context.Background(), "list-1", []domain.ValidationResult{
		{Email: "a@example.com", Result: domain.ResultDeliverable},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCascades(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM validation_results").
		WithArgs("list-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM contacts").
		WithArgs("list-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM validation_lists").
		WithArgs("list-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewListRepo(db)
	require.NoError(t, repo.Delete(context.Background(), "list-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM validation_results").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM contacts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM validation_lists").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewListRepo(db)
	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
