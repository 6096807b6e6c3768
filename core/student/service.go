package student

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
)

var (
	// errors
	ErrNotFound        = errors.New("student not found")
	ErrClassNotFound   = errors.New("class not found")
	ErrAdmissionExists = errors.New("a student with this admission number already exists")
	ErrClassExists     = errors.New("a class with this name already exists")
	ErrHasLedgerRows   = errors.New("student has recorded payments; delete with cascade to remove them")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Student, error)
		GetStudentByAdmissionNumber(ctx context.Context, admNo string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		// DeleteStudent removes the student row; the schema cascades to fees, payments and contributions.
		DeleteStudent(ctx context.Context, id int64, exec ...core.DBExecutor) error
		CountPayments(ctx context.Context, studentID int64, exec ...core.DBExecutor) (int, error)
		StudentIDsInClass(ctx context.Context, classID int64, exec ...core.DBExecutor) ([]int64, error)

		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		GetClassByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]Class, error)
	}

	Service struct {
		repo      Repository
		tx        core.Transactor
		trail     audit.Logger
		validator *core.Validator
		now       func() time.Time
	}
)

func NewService(repo Repository, tx core.Transactor, trail audit.Logger, validator *core.Validator) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		trail:     trail,
		validator: validator,
		now:       time.Now,
	}
}

// Exists checks that the student exists, inside the caller's transaction if any.
func (svc *Service) Exists(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	if id <= 0 {
		return ErrNotFound
	}
	_, err := svc.repo.GetStudentByID(ctx, id, exec...)
	return err
}

func (svc *Service) checkClass(ctx context.Context, classID int64, exec core.DBExecutor) error {
	if classID == 0 {
		return nil
	}
	if _, err := svc.repo.GetClassByID(ctx, classID, exec); err != nil {
		if errors.Cause(err) == ErrClassNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actorID int64, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validator.Struct(ns); err != nil {
		return Student{}, err
	}

	now := svc.now().UTC()
	var std Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetStudentByAdmissionNumber(ctx, ns.AdmissionNumber, exec); err == nil {
			return core.NewValidationError(ErrAdmissionExists, core.FieldError{Field: "admission_number", Error: ErrAdmissionExists.Error()})
		} else if errors.Cause(err) != ErrNotFound {
			return err
		}
		if err := svc.checkClass(ctx, ns.ClassID, exec); err != nil {
			return err
		}

		var err error
		std, err = svc.repo.CreateStudent(ctx, Student{
			AdmissionNumber: ns.AdmissionNumber,
			Name:            ns.Name,
			ClassID:         ns.ClassID,
			GuardianContact: ns.GuardianContact,
			BusLocation:     ns.BusLocation,
			CreatedAt:       now,
			UpdatedAt:       now,
		}, exec)
		return err
	})
	if err != nil {
		return Student{}, err
	}
	svc.trail.LogAction(ctx, actorID, fmt.Sprintf("Registered student %s (%s)", std.AdmissionNumber, std.Name))
	return std, nil
}

func (svc *Service) Update(ctx context.Context, actorID, id int64, us UpdateStudent) (Student, error) {
	if err := svc.validator.Struct(us); err != nil {
		return Student{}, err
	}

	var std Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if std, err = svc.repo.GetStudentByID(ctx, id, exec); err != nil {
			return err
		}
		us.apply(&std)
		if err = svc.checkClass(ctx, std.ClassID, exec); err != nil {
			return err
		}
		std.UpdatedAt = svc.now().UTC()
		std, err = svc.repo.UpdateStudent(ctx, std, exec)
		return err
	})
	if err != nil {
		return Student{}, err
	}
	svc.trail.LogAction(ctx, actorID, fmt.Sprintf("Updated student %s", std.AdmissionNumber))
	return std, nil
}

func (svc *Service) GetByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Student, error) {
	if id <= 0 {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudentByID(ctx, id, exec...)
}

func (svc *Service) GetByAdmissionNumber(ctx context.Context, admNo string) (Student, error) {
	admNo = CleanAdmissionNumber(admNo)
	if admNo == "" {
		return Student{}, ErrNotFound
	}
	return svc.repo.GetStudentByAdmissionNumber(ctx, admNo)
}

func (svc *Service) Search(ctx context.Context, filter QueryFilter) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter)
}

// Delete removes a student. Without cascade, students with recorded payments are kept and ErrHasLedgerRows is returned.
// With cascade, the student's obligation, payments and contributions are removed as well.
func (svc *Service) Delete(ctx context.Context, actorID, id int64, cascade bool) error {
	var std Student
	var paymentCount int
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if std, err = svc.repo.GetStudentByID(ctx, id, exec); err != nil {
			return err
		}
		if paymentCount, err = svc.repo.CountPayments(ctx, id, exec); err != nil {
			return err
		}
		if paymentCount > 0 && !cascade {
			return ErrHasLedgerRows
		}
		return svc.repo.DeleteStudent(ctx, id, exec)
	})
	if err != nil {
		if errors.Cause(err) == ErrHasLedgerRows {
			svc.trail.LogAction(ctx, actorID, fmt.Sprintf("Refused to delete student %s: %d payments on record", std.AdmissionNumber, paymentCount))
		}
		return err
	}

	action := fmt.Sprintf("Deleted student %s (%s)", std.AdmissionNumber, std.Name)
	if paymentCount > 0 {
		action += fmt.Sprintf(" with %d payments", paymentCount)
	}
	svc.trail.LogAction(ctx, actorID, action)
	return nil
}

func (svc *Service) CreateClass(ctx context.Context, actorID int64, name string) (Class, error) {
	name = core.CleanString(name)
	if name == "" {
		return Class{}, core.NewFieldError("name", "this field is required")
	}
	cls, err := svc.repo.CreateClass(ctx, Class{Name: name})
	if err != nil {
		if errors.Cause(err) == ErrClassExists {
			return Class{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return Class{}, err
	}
	svc.trail.LogAction(ctx, actorID, "Created class "+cls.Name)
	return cls, nil
}

func (svc *Service) GetClass(ctx context.Context, id int64) (Class, error) {
	if id <= 0 {
		return Class{}, ErrClassNotFound
	}
	return svc.repo.GetClassByID(ctx, id)
}

func (svc *Service) ListClasses(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

// StudentIDsInClass lists the class roll, inside the caller's transaction if any.
func (svc *Service) StudentIDsInClass(ctx context.Context, classID int64, exec ...core.DBExecutor) ([]int64, error) {
	if _, err := svc.repo.GetClassByID(ctx, classID, exec...); err != nil {
		return nil, err
	}
	return svc.repo.StudentIDsInClass(ctx, classID, exec...)
}
