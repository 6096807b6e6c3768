package student_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/testutil/dbtest"
)

func TestService_Create(t *testing.T) {
	env := dbtest.NewEnv(t)
	cls := env.CreateClass(t, "Grade 4")
	ctx := context.Background()

	std, err := env.Students.Create(ctx, 3, student.NewStudent{
		AdmissionNumber: " adm100 ",
		Name:            "  Amani  Juma ",
		ClassID:         cls.ID,
		GuardianContact: "parent@example.com",
		BusLocation:     "Location1",
	})
	require.NoError(t, err)
	assert.NotZero(t, std.ID)
	assert.Equal(t, "ADM100", std.AdmissionNumber)
	assert.Equal(t, cls.ID, std.ClassID)

	got, err := env.Students.GetByAdmissionNumber(ctx, "adm100")
	require.NoError(t, err)
	assert.Equal(t, std.ID, got.ID)
	assert.Equal(t, "Grade 4", got.ClassName)
	assert.Equal(t, "Location1", got.BusLocation)

	tests := []struct {
		name string
		ns   student.NewStudent
	}{
		{name: "duplicate admission number", ns: student.NewStudent{AdmissionNumber: "Adm100", Name: "Other"}},
		{name: "blank name", ns: student.NewStudent{AdmissionNumber: "ADM101", Name: "   "}},
		{name: "no admission number", ns: student.NewStudent{Name: "Nobody"}},
		{name: "unknown class", ns: student.NewStudent{AdmissionNumber: "ADM102", Name: "Lost", ClassID: cls.ID + 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Students.Create(ctx, 3, tt.ns)
			assert.True(t, core.IsValidationError(err), "Create() error = %v", err)
		})
	}

	found, err := env.Students.Search(ctx, student.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, env.Trail.Actions(), "Registered student ADM100 (Amani  Juma)")
}

func TestService_Update(t *testing.T) {
	env := dbtest.NewEnv(t)
	cls := env.CreateClass(t, "Grade 5")
	std := env.CreateStudent(t, "ADM200", "Baraka", cls.ID, "Location2")
	ctx := context.Background()

	noClass := int64(0)
	noBus := ""
	got, err := env.Students.Update(ctx, 3, std.ID, student.UpdateStudent{
		Name:        "Baraka Moyo",
		ClassID:     &noClass,
		BusLocation: &noBus,
	})
	require.NoError(t, err)
	assert.Equal(t, "Baraka Moyo", got.Name)
	assert.Zero(t, got.ClassID)
	assert.Empty(t, got.BusLocation)

	// blank fields are kept
	got, err = env.Students.Update(ctx, 3, std.ID, student.UpdateStudent{GuardianContact: "+255 700 000 000"})
	require.NoError(t, err)
	assert.Equal(t, "Baraka Moyo", got.Name)
	assert.Equal(t, "+255 700 000 000", got.GuardianContact)

	_, err = env.Students.Update(ctx, 3, std.ID+10, student.UpdateStudent{Name: "Ghost"})
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))
}

func TestService_Search(t *testing.T) {
	env := dbtest.NewEnv(t)
	g1 := env.CreateClass(t, "Grade 1")
	g2 := env.CreateClass(t, "Grade 2")
	env.CreateStudent(t, "ADM301", "Asha Ali", g1.ID)
	env.CreateStudent(t, "ADM302", "Juma Ali", g2.ID)
	env.CreateStudent(t, "X_303", "Neema", g2.ID)

	tests := []struct {
		name    string
		filter  student.QueryFilter
		wantAdm []string
	}{
		{name: "all", wantAdm: []string{"ADM301", "ADM302", "X_303"}},
		{name: "by name", filter: student.QueryFilter{Search: "ali"}, wantAdm: []string{"ADM301", "ADM302"}},
		{name: "by admission number", filter: student.QueryFilter{Search: "adm302"}, wantAdm: []string{"ADM302"}},
		{name: "underscore is literal", filter: student.QueryFilter{Search: "_"}, wantAdm: []string{"X_303"}},
		{name: "by class", filter: student.QueryFilter{ClassID: g2.ID}, wantAdm: []string{"ADM302", "X_303"}},
		{name: "by class and name", filter: student.QueryFilter{ClassID: g2.ID, Search: "neema"}, wantAdm: []string{"X_303"}},
		{name: "no match", filter: student.QueryFilter{Search: "zzz"}, wantAdm: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := env.Students.Search(context.Background(), tt.filter)
			require.NoError(t, err)
			adms := make([]string, 0, len(found))
			for _, std := range found {
				adms = append(adms, std.AdmissionNumber)
			}
			assert.ElementsMatch(t, tt.wantAdm, adms)
		})
	}
}

func TestService_Delete(t *testing.T) {
	env := dbtest.NewEnv(t)
	ctx := context.Background()

	clean := env.CreateStudent(t, "ADM400", "Clean", 0)
	paid := env.CreateStudent(t, "ADM401", "Paid", 0)

	_, err := env.Fees.SetObligation(ctx, 1, paid.ID, fee.NewObligation{TotalFees: decimal.NewFromInt(500)})
	require.NoError(t, err)
	_, err = env.Payments.RecordContribution(ctx, payment.NewContribution{
		StudentID: paid.ID, Commodity: "maize", Quantity: decimal.NewFromInt(2), RecorderID: 1,
	})
	require.NoError(t, err)

	require.NoError(t, env.Students.Delete(ctx, 1, clean.ID, false))
	_, err = env.Students.GetByID(ctx, clean.ID)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	err = env.Students.Delete(ctx, 1, paid.ID, false)
	assert.Equal(t, student.ErrHasLedgerRows, errors.Cause(err))
	_, err = env.Students.GetByID(ctx, paid.ID)
	assert.NoError(t, err, "refused delete removed the student")

	require.NoError(t, env.Students.Delete(ctx, 1, paid.ID, true))
	for _, table := range []string{"students", "fee_obligations", "payments", "contributions"} {
		var n int
		require.NoError(t, env.DB.Get(&n, "SELECT COUNT(*) FROM "+table))
		assert.Zero(t, n, "rows left in %s", table)
	}

	err = env.Students.Delete(ctx, 1, paid.ID, true)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	assert.Subset(t, env.Trail.Actions(), []string{
		"Deleted student ADM400 (Clean)",
		"Refused to delete student ADM401: 1 payments on record",
		"Deleted student ADM401 (Paid) with 1 payments",
	})
}

func TestService_classes(t *testing.T) {
	env := dbtest.NewEnv(t)
	ctx := context.Background()

	g1 := env.CreateClass(t, "Grade 1")
	_, err := env.Students.CreateClass(ctx, 1, " Grade 1 ")
	assert.True(t, core.IsValidationError(err), "CreateClass() error = %v", err)
	_, err = env.Students.CreateClass(ctx, 1, "  ")
	assert.True(t, core.IsValidationError(err), "CreateClass() error = %v", err)

	got, err := env.Students.GetClass(ctx, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, g1, got)
	_, err = env.Students.GetClass(ctx, g1.ID+1)
	assert.Equal(t, student.ErrClassNotFound, errors.Cause(err))

	env.CreateClass(t, "Grade 2")
	classes, err := env.Students.ListClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)

	a := env.CreateStudent(t, "ADM501", "A", g1.ID)
	b := env.CreateStudent(t, "ADM502", "B", g1.ID)
	env.CreateStudent(t, "ADM503", "C", 0)
	ids, err := env.Students.StudentIDsInClass(ctx, g1.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids)
}
