package theme_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/storage/database/inmem"
	"github.com/trezcool/evalua/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewThemeRepository(db)
	evalRepo := inmemdb.NewEvaluationRepository(db)
	svc := theme.NewService(repo, evalRepo, nil)
	validate, translator := testutil.NewValidator()

	nt := theme.NewTheme{Name: "  Premiers secours ", Description: "Gestes de base"}
	require.NoError(t, nt.Validate(ctx, validate, svc))
	firstAid, err := svc.Create(ctx, nt)
	require.NoError(t, err)
	assert.Equal(t, "Premiers secours", firstAid.Name)

	hygiene, err := svc.Create(ctx, theme.NewTheme{Name: "Hygiène"})
	require.NoError(t, err)

	t.Run("name is unique, case and accent insensitive", func(t *testing.T) {
		for _, name := range []string{"premiers SECOURS", "hygiene"} {
			dup := theme.NewTheme{Name: name}
			err := dup.Validate(ctx, validate, svc)
			assert.True(t, errors.Is(err, theme.ErrNameExists), name)
			fields, ok := core.FieldErrors(err, translator)
			require.True(t, ok)
			assert.Contains(t, fields, "name")
		}
	})

	t.Run("name is required", func(t *testing.T) {
		empty := theme.NewTheme{Name: "   "}
		fields, ok := core.FieldErrors(empty.Validate(ctx, validate, svc), translator)
		require.True(t, ok)
		assert.Equal(t, "this field is required", fields["name"])
	})

	t.Run("update", func(t *testing.T) {
		desc := " Lavage des mains "
		ut := theme.UpdateTheme{Description: &desc}
		require.NoError(t, ut.Validate(ctx, hygiene, validate, svc))
		got, err := svc.Update(ctx, hygiene, ut)
		require.NoError(t, err)
		assert.Equal(t, "Hygiène", got.Name)
		assert.Equal(t, "Lavage des mains", got.Description)

		rename := theme.UpdateTheme{Name: "Premiers Secours"}
		assert.True(t, errors.Is(rename.Validate(ctx, hygiene, validate, svc), theme.ErrNameExists))

		self := theme.UpdateTheme{Name: "HYGIENE"}
		assert.NoError(t, self.Validate(ctx, hygiene, validate, svc))
	})

	t.Run("query", func(t *testing.T) {
		all, err := svc.Query(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, hygiene.ID, all[0].ID)

		found, err := svc.Query(ctx, &theme.QueryFilter{Search: "GESTES"}, nil)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, firstAid.ID, found[0].ID)
	})

	t.Run("delete is blocked while used", func(t *testing.T) {
		stf := testutil.CreateStaff(t, inmemdb.NewStaffRepository(db), "Amina", "Diallo", "", "")
		ev := testutil.CreateEvaluation(t, evalRepo, evaluation.Evaluation{StaffID: stf.ID, ThemeID: firstAid.ID, Kind: evaluation.KindInitial})

		err := svc.Delete(ctx, firstAid.ID)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
		assert.Equal(t, "theme is used by 1 evaluation(s)", err.Error())

		require.NoError(t, evalRepo.DeleteEvaluation(ctx, ev.ID))
		require.NoError(t, svc.Delete(ctx, firstAid.ID))
		_, err = svc.GetByID(ctx, firstAid.ID)
		assert.True(t, errors.Is(err, theme.ErrNotFound))
	})
}
