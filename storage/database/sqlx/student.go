package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/storage/database"
)

const studentColumns = `s.id, s.admission_number, s.name, s.class_id, c.name AS class_name,
	s.guardian_contact, s.bus_location, s.created_at, s.updated_at
	FROM students s LEFT JOIN classes c ON c.id = s.class_id`

type (
	studentRow struct {
		ID              int64       `db:"id"`
		AdmissionNumber string      `db:"admission_number"`
		Name            string      `db:"name"`
		ClassID         null.Int64  `db:"class_id"`
		ClassName       null.String `db:"class_name"`
		GuardianContact string      `db:"guardian_contact"`
		BusLocation     string      `db:"bus_location"`
		CreatedAt       time.Time   `db:"created_at"`
		UpdatedAt       time.Time   `db:"updated_at"`
	}

	classRow struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
)

func (row studentRow) unboil() student.Student {
	return student.Student{
		ID:              row.ID,
		AdmissionNumber: row.AdmissionNumber,
		Name:            row.Name,
		ClassID:         row.ClassID.Int64,
		ClassName:       row.ClassName.String,
		GuardianContact: row.GuardianContact,
		BusLocation:     row.BusLocation,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	base
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{base{exec: exec}}
}

func (repo studentRepository) CreateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	id, err := insertReturningID(ctx, exe,
		`INSERT INTO students (admission_number, name, class_id, guardian_contact, bus_location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		std.AdmissionNumber, std.Name, null.NewInt64(std.ClassID, std.ClassID != 0),
		std.GuardianContact, std.BusLocation, std.CreatedAt.UTC(), std.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err, "admission_number") {
			return student.Student{}, student.ErrAdmissionExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return repo.GetStudentByID(ctx, id, exe)
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	err := get(ctx, repo.getExec(exec), student.ErrNotFound, &row, "SELECT "+studentColumns+" WHERE s.id = ?", id)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "getting student by ID")
	}
	return row.unboil(), nil
}

func (repo studentRepository) GetStudentByAdmissionNumber(ctx context.Context, admNo string, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	err := get(ctx, repo.getExec(exec), student.ErrNotFound, &row, "SELECT "+studentColumns+" WHERE s.admission_number = ?", admNo)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "getting student by admission number")
	}
	return row.unboil(), nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	var w where
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add(`(LOWER(s.name) LIKE ? ESCAPE '\' OR LOWER(s.admission_number) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if filter.ClassID != 0 {
		w.add("s.class_id = ?", filter.ClassID)
	}
	page := filter.Page.Clamp(100, 1000)
	q := "SELECT " + studentColumns + w.String() + " ORDER BY s.name, s.id LIMIT ? OFFSET ?"

	var rows []studentRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, append(w.args, page.Limit, page.Offset)...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.unboil())
	}
	return students, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	n, err := execRowsAffected(ctx, exe,
		`UPDATE students SET name = ?, class_id = ?, guardian_contact = ?, bus_location = ?, updated_at = ? WHERE id = ?`,
		std.Name, null.NewInt64(std.ClassID, std.ClassID != 0), std.GuardianContact, std.BusLocation, std.UpdatedAt.UTC(), std.ID,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudentByID(ctx, std.ID, exe)
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execRowsAffected(ctx, repo.getExec(exec), "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) CountPayments(ctx context.Context, studentID int64, exec ...core.DBExecutor) (int, error) {
	var n int
	if err := get(ctx, repo.getExec(exec), nil, &n, "SELECT COUNT(*) FROM payments WHERE student_id = ?", studentID); err != nil {
		return 0, errors.Wrap(err, "counting payments")
	}
	return n, nil
}

func (repo studentRepository) StudentIDsInClass(ctx context.Context, classID int64, exec ...core.DBExecutor) ([]int64, error) {
	var ids []int64
	if err := selectAll(ctx, repo.getExec(exec), &ids, "SELECT id FROM students WHERE class_id = ? ORDER BY id", classID); err != nil {
		return nil, errors.Wrap(err, "listing class students")
	}
	return ids, nil
}

func (repo studentRepository) CreateClass(ctx context.Context, cls student.Class, exec ...core.DBExecutor) (student.Class, error) {
	id, err := insertReturningID(ctx, repo.getExec(exec), "INSERT INTO classes (name) VALUES (?) RETURNING id", cls.Name)
	if err != nil {
		if database.IsUniqueViolation(err, "name") {
			return student.Class{}, student.ErrClassExists
		}
		return student.Class{}, errors.Wrap(err, "inserting class")
	}
	cls.ID = id
	return cls, nil
}

func (repo studentRepository) GetClassByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Class, error) {
	var row classRow
	if err := get(ctx, repo.getExec(exec), student.ErrClassNotFound, &row, "SELECT id, name FROM classes WHERE id = ?", id); err != nil {
		return student.Class{}, errors.Wrap(err, "getting class by ID")
	}
	return student.Class{ID: row.ID, Name: row.Name}, nil
}

func (repo studentRepository) QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]student.Class, error) {
	var rows []classRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, "SELECT id, name FROM classes ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]student.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, student.Class{ID: row.ID, Name: row.Name})
	}
	return classes, nil
}
