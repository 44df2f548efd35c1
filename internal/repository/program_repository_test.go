package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

var programRowColumns = []string{"id", "name", "description", "recurrence", "valid_from", "valid_to", "participants", "created_by", "created_at", "updated_at"}

func TestProgramFindByIDScansRecurrenceAndParticipants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(programRowColumns).
		AddRow("p-1", "Weekly Report", "", []byte(`{"kind":"weekly","weekday":"Monday"}`), "2024-01-01", "2024-01-31", "{u-2,u-1}", "admin-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM programs WHERE id = $1")).WithArgs("p-1").WillReturnRows(rows)

	program, err := repo.FindByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecurrenceWeekly, program.Recurrence.Kind)
	assert.Equal(t, "Monday", program.Recurrence.Weekday)
	assert.Equal(t, "2024-01-31", program.ValidTo.String())
	assert.Equal(t, []string{"u-2", "u-1"}, []string(program.Participants))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramListByParticipant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM programs WHERE $1 = ANY(participants) ORDER BY created_at DESC")).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(programRowColumns))

	programs, err := repo.ListByParticipant(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, programs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramListWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM programs WHERE 1=1 AND (LOWER(name) LIKE $1 OR LOWER(description) LIKE $1) AND created_by = $2 ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("%weekly%", "admin-1").
		WillReturnRows(sqlmock.NewRows(programRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM programs WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	_, total, err := repo.List(context.Background(), models.ProgramFilter{Search: "Weekly", CreatedBy: "admin-1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM programs WHERE id = $1")).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ghost"), sql.ErrNoRows)
}

func TestProgramUpdateParticipants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE programs SET participants = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("p-1", sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateParticipants(context.Background(), "p-1", []string{"u-1"}, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
